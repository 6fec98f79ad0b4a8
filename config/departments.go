package config

import "strings"

// Department represents a French department covered by the DVF extracts
type Department struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// KnownDepartments lists the departments the application exposes for import.
// Corsica uses the letter codes 2A/2B instead of 20.
var KnownDepartments = []Department{
	{Code: "75", Name: "Paris"},
	{Code: "77", Name: "Seine-et-Marne"},
	{Code: "78", Name: "Yvelines"},
	{Code: "91", Name: "Essonne"},
	{Code: "92", Name: "Hauts-de-Seine"},
	{Code: "93", Name: "Seine-Saint-Denis"},
	{Code: "94", Name: "Val-de-Marne"},
	{Code: "95", Name: "Val-d'Oise"},
	{Code: "13", Name: "Bouches-du-Rhône"},
	{Code: "31", Name: "Haute-Garonne"},
	{Code: "33", Name: "Gironde"},
	{Code: "34", Name: "Hérault"},
	{Code: "44", Name: "Loire-Atlantique"},
	{Code: "59", Name: "Nord"},
	{Code: "67", Name: "Bas-Rhin"},
	{Code: "69", Name: "Rhône"},
	{Code: "2A", Name: "Corse-du-Sud"},
	{Code: "2B", Name: "Haute-Corse"},
}

// NormalizeDepartment canonicalizes a department code: trims, upper-cases
// the Corsican letter codes and left-pads single digits ("7" -> "07").
func NormalizeDepartment(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// IsValidDepartment reports whether the code looks like a French
// department code (metropolitan, Corsica or overseas).
func IsValidDepartment(code string) bool {
	code = NormalizeDepartment(code)
	if code == "2A" || code == "2B" {
		return true
	}
	if len(code) != 2 && len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return code != "00" && code != "000"
}

// GetDepartmentByCode returns the department configuration by code
func GetDepartmentByCode(code string) *Department {
	code = NormalizeDepartment(code)
	for _, dept := range KnownDepartments {
		if dept.Code == code {
			return &dept
		}
	}
	return nil
}
