package preprocess

import (
	"fmt"
	"strings"
)

// Variant names one of the two known step lists
type Variant int

const (
	// VariantBlur composites, grays and then smooths with a Gaussian.
	VariantBlur Variant = iota

	// VariantComposite composites and grays without smoothing.
	VariantComposite
)

const protocolPrefix = "bitslicer."

var variantNames = map[Variant]string{
	VariantBlur:      "blur",
	VariantComposite: "composite",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Protocol returns the WebSocket subprotocol that pins this variant
func (v Variant) Protocol() string {
	return protocolPrefix + v.String()
}

// ParseVariant maps a variant name to its value
func ParseVariant(s string) (Variant, error) {
	for v, name := range variantNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("preprocess: unknown variant %q", s)
}

// VariantForProtocol returns the variant pinned by a negotiated subprotocol
func VariantForProtocol(protocol string) (Variant, bool) {
	if !strings.HasPrefix(protocol, protocolPrefix) {
		return 0, false
	}
	v, err := ParseVariant(strings.TrimPrefix(protocol, protocolPrefix))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ForVariant builds the step list for v
func ForVariant(v Variant, opts Options) *Pipeline {
	steps := []Step{
		AlphaComposite{Background: opts.Background},
		Grayscale{},
	}
	if v == VariantBlur {
		steps = append(steps, GaussianBlur{Sigma: opts.Sigma, Truncate: opts.Truncate})
	}
	return New(steps...)
}
