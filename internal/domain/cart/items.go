package cart

import "strings"

// LabTest is an orderable investigation.
type LabTest struct {
	ID       string `json:"id"`
	Code     string `json:"code,omitempty"`
	Name     string `json:"name"`
	Specimen string `json:"specimen,omitempty"`
	Price    string `json:"price"`
}

func (t LabTest) ItemID() string    { return t.ID }
func (t LabTest) ItemPrice() string { return t.Price }

func (t LabTest) ItemLabel() string {
	if t.Code == "" {
		return t.Name
	}
	return t.Name + " (" + t.Code + ")"
}

// PharmacyItem is a dispensable product, e.g. eye drops.
type PharmacyItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Strength     string `json:"strength,omitempty"`
	Form         string `json:"form,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Price        string `json:"price"`
}

func (p PharmacyItem) ItemID() string    { return p.ID }
func (p PharmacyItem) ItemPrice() string { return p.Price }

func (p PharmacyItem) ItemLabel() string {
	parts := []string{p.Name}
	for _, s := range []string{p.Strength, p.Form} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
