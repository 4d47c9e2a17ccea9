package describe

//go:generate go tool go-enum --marshal

// Markup convention linking image to its long description.
// ENUM(figcaption, describedby, details)
type AssociationKind int
