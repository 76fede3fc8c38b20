package models

// Category groups marker types and gives them a color.
type Category struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
}

// Marker is a pin type: built in, or user defined when Custom is set.
type Marker struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Label    string `json:"label" yaml:"label"`
	Icon     string `json:"icon" yaml:"icon,omitempty"`
	Custom   bool   `json:"custom" yaml:"-"`

	// CreatedBy is the uid that defined a custom marker.
	CreatedBy string `json:"createdBy,omitempty" yaml:"created_by,omitempty"`
}
