package domain

import (
	"fmt"
	"math"
)

// Layout of the enhanced encoding.
const (
	EnhancedDimension     = 1002
	LandmarkComponents    = 936
	GeometricComponents   = 10
	MeasurementComponents = 50
	// MaxDimension bounds accepted vectors.
	MaxDimension = 4096
)

// EncodingFormat tags how a feature vector must be interpreted.
type EncodingFormat string

const (
	EncodingFormatLegacy   EncodingFormat = "legacy"
	EncodingFormatEnhanced EncodingFormat = "enhanced"
)

// FormatForDimension derives the encoding format from a vector length.
func FormatForDimension(n int) EncodingFormat {
	if n >= EnhancedDimension {
		return EncodingFormatEnhanced
	}
	return EncodingFormatLegacy
}

// FeatureVector is an immutable biometric feature vector. The format is fixed at parse time.
type FeatureVector struct {
	format EncodingFormat
	values []float64
}

// EnhancedBlocks exposes the weighted blocks of an enhanced encoding.
type EnhancedBlocks struct {
	Landmarks    []float64
	Geometry     []float64
	Measurements []float64
}

// ParseFeatureVector validates raw components and returns a tagged vector.
func ParseFeatureVector(values []float64) (FeatureVector, error) {
	if len(values) == 0 {
		return FeatureVector{}, fmt.Errorf("%w: empty vector", ErrMalformedVector)
	}
	if len(values) > MaxDimension {
		return FeatureVector{}, fmt.Errorf("%w: %d components exceeds %d", ErrMalformedVector, len(values), MaxDimension)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FeatureVector{}, fmt.Errorf("%w: component %d is not finite", ErrMalformedVector, i)
		}
	}

	cp := make([]float64, len(values))
	copy(cp, values)
	return FeatureVector{format: FormatForDimension(len(cp)), values: cp}, nil
}

// Format returns the encoding tag.
func (v FeatureVector) Format() EncodingFormat { return v.format }

// Len returns the number of components.
func (v FeatureVector) Len() int { return len(v.values) }

// IsZero reports whether the vector was never parsed.
func (v FeatureVector) IsZero() bool { return len(v.values) == 0 }

// Values returns a copy of the components.
func (v FeatureVector) Values() []float64 {
	cp := make([]float64, len(v.values))
	copy(cp, v.values)
	return cp
}

// Truncate returns a vector holding the first n components, re-tagged for its new length.
func (v FeatureVector) Truncate(n int) FeatureVector {
	if n >= len(v.values) {
		return v
	}
	if n < 0 {
		n = 0
	}
	cp := make([]float64, n)
	copy(cp, v.values[:n])
	return FeatureVector{format: FormatForDimension(n), values: cp}
}

// Enhanced returns the weighted blocks when the vector uses the enhanced encoding.
func (v FeatureVector) Enhanced() (EnhancedBlocks, bool) {
	if v.format != EncodingFormatEnhanced {
		return EnhancedBlocks{}, false
	}
	geoEnd := LandmarkComponents + GeometricComponents
	measEnd := geoEnd + MeasurementComponents
	return EnhancedBlocks{
		Landmarks:    clone(v.values[:LandmarkComponents]),
		Geometry:     clone(v.values[LandmarkComponents:geoEnd]),
		Measurements: clone(v.values[geoEnd:measEnd]),
	}, true
}

func clone(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	return out
}
