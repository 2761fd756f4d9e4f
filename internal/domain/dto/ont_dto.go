package dto

// OntKey is the scan target for identifier resolution queries
type OntKey struct {
	ID          int64  `db:"id"`
	VendorOntID string `db:"vendor_ont_id"`
}

// OltRow mirrors a row of the olt table
type OltRow struct {
	ID           string  `db:"id"`
	Vendor       string  `db:"vendor"`
	Host         string  `db:"host"`
	Port         int     `db:"port"`
	PollInterval int     `db:"poll_interval"`
	Description  *string `db:"description"`
}
