package port

import "github.com/arklim/workforce-biometric/internal/core/domain"

// VectorSealer protects stored feature vectors.
// Fingerprint is a fast keyed digest for exact-match detection; Seal is the slow, salted form
// that Confirm re-derives for a presented vector.
type VectorSealer interface {
	Fingerprint(vector domain.FeatureVector) string
	Seal(vector domain.FeatureVector) (string, error)
	Confirm(vector domain.FeatureVector, sealed string) (bool, error)
}

// DeviceHasher derives a stable fingerprint from free-form device information.
type DeviceHasher interface {
	HashDevice(info domain.DeviceInfo) string
}
