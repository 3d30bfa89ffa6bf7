package model

import "time"

// MetricRow is one metric owned directly by the organization in the default
// catalog. It already carries hierarchy keys.
type MetricRow struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Owner           string   `json:"owner,omitempty"`
	Direction       string   `json:"direction"`
	CurrentValue    *float64 `json:"current_value,omitempty"`
	TargetValue     *float64 `json:"target_value,omitempty"`
	ToleranceLow    *float64 `json:"tolerance_low,omitempty"`
	ToleranceHigh   *float64 `json:"tolerance_high,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	PriorityRank    int      `json:"priority_rank"`
	FrameworkCode   string   `json:"framework_code"`
	FunctionCode    string   `json:"function_code,omitempty"`
	CategoryCode    string   `json:"category_code,omitempty"`
	SubcategoryCode string   `json:"subcategory_code,omitempty"`
	Active          bool     `json:"active"`
}

// Input returns the row's fields in source-agnostic form.
func (r MetricRow) Input() MetricInput {
	return MetricInput{
		ID:              r.ID,
		Name:            r.Name,
		Owner:           r.Owner,
		Direction:       r.Direction,
		CurrentValue:    r.CurrentValue,
		TargetValue:     r.TargetValue,
		ToleranceLow:    r.ToleranceLow,
		ToleranceHigh:   r.ToleranceHigh,
		Weight:          r.Weight,
		PriorityRank:    r.PriorityRank,
		FrameworkCode:   r.FrameworkCode,
		FunctionCode:    r.FunctionCode,
		CategoryCode:    r.CategoryCode,
		SubcategoryCode: r.SubcategoryCode,
		Active:          r.Active,
	}
}

// Catalog is a user-uploaded alternative metric set. At most one catalog is
// active per owner.
type Catalog struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FrameworkCode string    `json:"framework_code"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// CatalogItem is one metric definition inside a custom catalog. Hierarchy keys
// live in a separate CatalogMapping.
type CatalogItem struct {
	ID            string   `json:"id"`
	CatalogID     string   `json:"catalog_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Owner         string   `json:"owner,omitempty"`
	Direction     string   `json:"direction"`
	CurrentValue  *float64 `json:"current_value,omitempty"`
	TargetValue   *float64 `json:"target_value,omitempty"`
	ToleranceLow  *float64 `json:"tolerance_low,omitempty"`
	ToleranceHigh *float64 `json:"tolerance_high,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	PriorityRank  int      `json:"priority_rank"`
	Active        bool     `json:"active"`
}

// CatalogMapping places a catalog item in the framework hierarchy.
type CatalogMapping struct {
	ItemID          string `json:"item_id"`
	FunctionCode    string `json:"function_code"`
	CategoryCode    string `json:"category_code,omitempty"`
	SubcategoryCode string `json:"subcategory_code,omitempty"`
}

// Input returns the item's fields in source-agnostic form, joined with its
// mapping when one exists. frameworkCode comes from the owning catalog.
func (it CatalogItem) Input(frameworkCode string, mapping *CatalogMapping) MetricInput {
	in := MetricInput{
		ID:            it.ID,
		Name:          it.Name,
		Owner:         it.Owner,
		Direction:     it.Direction,
		CurrentValue:  it.CurrentValue,
		TargetValue:   it.TargetValue,
		ToleranceLow:  it.ToleranceLow,
		ToleranceHigh: it.ToleranceHigh,
		Weight:        it.Weight,
		PriorityRank:  it.PriorityRank,
		FrameworkCode: frameworkCode,
		Active:        it.Active,
	}
	if mapping != nil {
		in.FunctionCode = mapping.FunctionCode
		in.CategoryCode = mapping.CategoryCode
		in.SubcategoryCode = mapping.SubcategoryCode
	}
	return in
}
