package model

import "fmt"

// Excitation modes recorded in the output description.
const (
	ExcitationSingle = "single-wavelength"
	ExcitationDual   = "dual-wavelength"
)

// WavelengthChannel identifies one excitation/indicator pairing.
type WavelengthChannel struct {
	WavelengthNM int    `json:"excitation_wavelength_nm"`
	Indicator    string `json:"indicator"`
	Field        string `json:"field"`
}

var wavelengthSuffixes = map[int]string{
	470: "Green",
	405: "GreenIsosbestic",
	415: "GreenIsosbestic",
	570: "Red",
}

// SeriesSuffix maps the excitation wavelength onto the series name suffix.
func (c WavelengthChannel) SeriesSuffix() (string, error) {
	suffix, ok := wavelengthSuffixes[c.WavelengthNM]
	if !ok {
		return "", fmt.Errorf("unsupported excitation wavelength %d nm", c.WavelengthNM)
	}
	return suffix, nil
}

// ResponseSeriesName is the fiber photometry response series name.
func (c WavelengthChannel) ResponseSeriesName() string {
	suffix, err := c.SeriesSuffix()
	if err != nil {
		suffix = fmt.Sprintf("%dnm", c.WavelengthNM)
	}
	return "FiberPhotometryResponseSeries" + suffix
}

// PhotonSeriesName is the one-photon imaging series name.
func (c WavelengthChannel) PhotonSeriesName() string {
	suffix, err := c.SeriesSuffix()
	if err != nil {
		suffix = fmt.Sprintf("%dnm", c.WavelengthNM)
	}
	return "OnePhotonSeries" + suffix
}

// ImagingPlaneName is the imaging plane described by this channel's
// indicator and excitation wavelength.
func (c WavelengthChannel) ImagingPlaneName() string {
	suffix, err := c.SeriesSuffix()
	if err != nil {
		suffix = fmt.Sprintf("%dnm", c.WavelengthNM)
	}
	return "ImagingPlane" + suffix
}

func (c WavelengthChannel) String() string {
	return fmt.Sprintf("%s@%dnm", c.Indicator, c.WavelengthNM)
}
