package domain

import "time"

// Device risk scores.
const (
	DeviceRiskTrusted = 10
	DeviceRiskNeutral = 50
	DeviceRiskBlocked = 100
)

// DeviceFingerprint tracks a capture device seen for an identity.
type DeviceFingerprint struct {
	IdentityID string
	DeviceHash string
	DeviceInfo DeviceInfo
	Trusted    bool
	Blocked    bool
	RiskScore  int
	FirstSeen  time.Time
	LastSeen   time.Time
	UpdatedBy  *string
}

// NewDeviceFingerprint registers a first sighting: untrusted with neutral risk.
func NewDeviceFingerprint(identityID, hash string, info DeviceInfo, now time.Time) DeviceFingerprint {
	return DeviceFingerprint{
		IdentityID: identityID,
		DeviceHash: hash,
		DeviceInfo: info,
		RiskScore:  DeviceRiskNeutral,
		FirstSeen:  now,
		LastSeen:   now,
	}
}

// Trust marks the device trusted and lifts any block.
func (d DeviceFingerprint) Trust(by string) DeviceFingerprint {
	d.Trusted = true
	d.Blocked = false
	d.RiskScore = DeviceRiskTrusted
	d.UpdatedBy = &by
	return d
}

// Untrust returns the device to neutral.
func (d DeviceFingerprint) Untrust(by string) DeviceFingerprint {
	d.Trusted = false
	d.Blocked = false
	d.RiskScore = DeviceRiskNeutral
	d.UpdatedBy = &by
	return d
}

// Block marks the device blocked. A blocked device is never trusted.
func (d DeviceFingerprint) Block(by string) DeviceFingerprint {
	d.Trusted = false
	d.Blocked = true
	d.RiskScore = DeviceRiskBlocked
	d.UpdatedBy = &by
	return d
}
