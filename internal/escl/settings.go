package escl

import "encoding/xml"

// Intent hints the device at what is being scanned.
type Intent string

const (
	IntentDocument       Intent = "Document"
	IntentPhoto          Intent = "Photo"
	IntentPreview        Intent = "Preview"
	IntentTextAndGraphic Intent = "TextAndGraphic"
)

// Source selects the scan input.
type Source string

const (
	SourcePlaten Source = "Platen"
	SourceADF    Source = "Adf"
)

// ColorMode selects the pixel format.
type ColorMode string

const (
	ColorBW        ColorMode = "BlackAndWhite1"
	ColorGrayscale ColorMode = "Grayscale8"
	ColorRGB       ColorMode = "RGB24"
)

// Format selects the document container.
type Format string

const (
	FormatPDF  Format = "application/pdf"
	FormatJPEG Format = "image/jpeg"
)

// Settings is one scan request's parameters. Width and Height are in
// 1/300-inch units.
type Settings struct {
	Intent     Intent
	Source     Source
	ColorMode  ColorMode
	Resolution int
	Format     Format
	Width      int
	Height     int
}

// DefaultSettings returns letter-size 300 DPI color PDF settings.
func DefaultSettings() Settings {
	return Settings{
		Intent:     IntentDocument,
		Source:     SourcePlaten,
		ColorMode:  ColorRGB,
		Resolution: 300,
		Format:     FormatPDF,
		Width:      2550,
		Height:     3300,
	}
}

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// scanSettingsXML mirrors the device's expected job-creation body. The
// prefixes are written literally; the device rejects bodies without them.
type scanSettingsXML struct {
	XMLName   xml.Name `xml:"scan:ScanSettings"`
	XmlnsScan string   `xml:"xmlns:scan,attr"`
	XmlnsPwg  string   `xml:"xmlns:pwg,attr"`
	Version   string   `xml:"pwg:Version"`
	Intent    string   `xml:"scan:Intent"`
	Region    struct {
		XOffset int    `xml:"pwg:XOffset"`
		YOffset int    `xml:"pwg:YOffset"`
		Width   int    `xml:"pwg:Width"`
		Height  int    `xml:"pwg:Height"`
		Units   string `xml:"pwg:ContentRegionUnits"`
	} `xml:"pwg:ScanRegions>pwg:ScanRegion"`
	InputSource string `xml:"pwg:InputSource"`
	ColorMode   string `xml:"scan:ColorMode"`
	XResolution int    `xml:"scan:XResolution"`
	YResolution int    `xml:"scan:YResolution"`
	Format      string `xml:"pwg:DocumentFormat"`
}

// marshalSettings renders the eSCL job-creation request body.
func marshalSettings(s Settings) ([]byte, error) {
	body := scanSettingsXML{
		XmlnsScan:   "http://schemas.hp.com/imaging/escl/2011/05/03",
		XmlnsPwg:    "http://www.pwg.org/schemas/2010/12/sm",
		Version:     "2.63",
		Intent:      string(s.Intent),
		InputSource: string(s.Source),
		ColorMode:   string(s.ColorMode),
		XResolution: s.Resolution,
		YResolution: s.Resolution,
		Format:      string(s.Format),
	}
	body.Region.Width = s.Width
	body.Region.Height = s.Height
	body.Region.Units = "escl:ThreeHundredthsOfInches"

	data, err := xml.Marshal(body)
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), data...), nil
}
