package models

import "time"

// Transaction is one DVF mutation row as persisted in the store.
// Rows are append-only: they are written once by an import run and only
// ever removed in bulk by vintage.
type Transaction struct {
	ID                int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	MutationDate      time.Time  `json:"mutation_date" gorm:"column:mutation_date;index"`
	MutationNature    string     `json:"mutation_nature" gorm:"column:mutation_nature"`
	Value             *float64   `json:"value" gorm:"column:value"`
	LotNumber         string     `json:"lot_number" gorm:"column:lot_number"`
	LotArea           *float64   `json:"lot_area" gorm:"column:lot_area"`
	PropertyTypeCode  string     `json:"property_type_code" gorm:"column:property_type_code"`
	PropertyTypeLabel string     `json:"property_type_label" gorm:"column:property_type_label;index"`
	BuiltArea         *float64   `json:"built_area" gorm:"column:built_area"`
	RoomCount         *int       `json:"room_count" gorm:"column:room_count"`
	LandArea          *float64   `json:"land_area" gorm:"column:land_area"`
	Latitude          *float64   `json:"latitude" gorm:"column:latitude"`
	Longitude         *float64   `json:"longitude" gorm:"column:longitude"`
	PostalCode        string     `json:"postal_code" gorm:"column:postal_code;index"`
	CommuneName       string     `json:"commune_name" gorm:"column:commune_name"`
	CommuneCode       string     `json:"commune_code" gorm:"column:commune_code"`
	DepartmentCode    string     `json:"department_code" gorm:"column:department_code;index"`
	Vintage           string     `json:"vintage" gorm:"column:vintage;index"`
	PricePerArea      *float64   `json:"price_per_area" gorm:"column:price_per_area"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps gorm writes and the raw-SQL reads on the same table.
func (Transaction) TableName() string {
	return "transactions"
}

// ComputePricePerArea derives the price-per-area metric from the stored
// fields. Nil when there is no value or no positive built area.
func (t *Transaction) ComputePricePerArea() *float64 {
	if t.Value == nil || t.BuiltArea == nil || *t.BuiltArea <= 0 {
		return nil
	}
	ppa := *t.Value / *t.BuiltArea
	return &ppa
}
