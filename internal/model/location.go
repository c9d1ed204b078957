package model

// Coordinate is a single input row: a WGS84 latitude/longitude pair in
// decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Location is a coordinate enriched with its nearest postcode. An empty
// NearestPostcode means the lookup failed or the API has no coverage at
// that point.
type Location struct {
	ID              int64   `json:"id,omitempty"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	NearestPostcode string  `json:"nearest_postcode,omitempty"`
}

// HasPostcode reports whether enrichment produced a postcode for this
// location.
func (l Location) HasPostcode() bool {
	return l.NearestPostcode != ""
}

// PostcodeCount is one entry of a postcode frequency ranking.
type PostcodeCount struct {
	Postcode string `json:"postcode"`
	Count    int64  `json:"count"`
}

// LocationStats aggregates the locations table for status and summary
// reporting.
type LocationStats struct {
	Total           int64           `json:"total"`
	WithPostcode    int64           `json:"with_postcode"`
	WithoutPostcode int64           `json:"without_postcode"`
	TopPostcodes    []PostcodeCount `json:"top_postcodes,omitempty"`
}
