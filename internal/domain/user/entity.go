package user

// User represents a user entity in the system.
type User struct {
	ID    int64  `json:"id"`    // ID is the unique identifier for the user
	Name  string `json:"name"`  // Name is the full name of the user
	Email string `json:"email"` // Email is the unique email address of the user
	Age   int    `json:"age"`   // Age of the user in years
}

// Changes carries the fields of a partial update. Nil fields are left untouched.
type Changes struct {
	Name  *string
	Email *string
	Age   *int
}

// Empty reports whether no field is set.
func (c Changes) Empty() bool {
	return c.Name == nil && c.Email == nil && c.Age == nil
}
