package model

type Format uint8

const (
	// FormatCSV is long-form delimited text, one row per location x time.
	FormatCSV Format = iota
	// FormatGridCSV is a single-parameter grid pivoted into a lat x lon matrix.
	FormatGridCSV
	FormatPNG
	FormatNetCDF
)

// Wire returns the path segment the service expects for the format.
func (f Format) Wire() string {
	switch f {
	case FormatCSV, FormatGridCSV:
		return "csv"
	case FormatPNG:
		return "png"
	case FormatNetCDF:
		return "netcdf"
	default:
		return ""
	}
}

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatGridCSV:
		return "grid_csv"
	case FormatPNG:
		return "png"
	case FormatNetCDF:
		return "netcdf"
	default:
		return "unknown"
	}
}

// Binary reports whether the payload is persisted verbatim instead of decoded.
func (f Format) Binary() bool {
	return f == FormatPNG || f == FormatNetCDF
}

// AccountStats is the decoded self-check/quota record of the authenticated account.
type AccountStats struct {
	Username string
	Fields   map[string]any
}
