package domain

// Summary shapes returned by the data access tools. Each is a narrow,
// purpose-built projection: no telephone numbers, street addresses, or any
// field beyond those declared here may ever appear in a tool result.

// VetSummary is a veterinarian with specialty names.
type VetSummary struct {
	Name        string   `json:"name"`
	Specialties []string `json:"specialties"`
}

// VisitSummary is an upcoming visit as exposed to the model.
type VisitSummary struct {
	OwnerName   string `json:"ownerName"`
	PetName     string `json:"petName"`
	Date        string `json:"date"` // ISO date, yyyy-mm-dd
	Description string `json:"description"`
}
