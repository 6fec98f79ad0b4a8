package models

// Listing is the read-only view of a property advert, as provided by the
// surrounding application. Only the fields market analysis needs.
type Listing struct {
	ID           int64    `json:"id" gorm:"primaryKey"`
	Price        float64  `json:"price" gorm:"column:price"`
	BuiltArea    *float64 `json:"built_area" gorm:"column:built_area"`
	PostalCode   string   `json:"postal_code" gorm:"column:postal_code"`
	PropertyType string   `json:"property_type" gorm:"column:property_type"`
	Country      string   `json:"country" gorm:"column:country"`
}

func (Listing) TableName() string {
	return "listings"
}
