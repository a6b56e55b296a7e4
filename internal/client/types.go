package client

// Info is the subset of /actuator/info the client needs.
type Info struct {
	Auth struct {
		IssuerURI string `json:"issuer-uri"`
	} `json:"auth"`
	Build struct {
		Version string `json:"version"`
		Name    string `json:"name"`
	} `json:"build"`
}

// Application is a bookmarked web application.
type Application struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	IconURL     string   `json:"iconUrl,omitempty"`
	CategoryID  *int64   `json:"categoryId,omitempty"`
	SortOrder   int      `json:"sortOrder"`
	Roles       []string `json:"roles,omitempty"`
	// Isolated applications are opened through the session bridge.
	Isolated bool `json:"isolated,omitempty"`
}

// Category groups applications.
type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
}

// User is a dashboard user as seen by administrators.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Ticket is a one-time bridge ticket.
type Ticket struct {
	Ticket string `json:"ticket"`
}
