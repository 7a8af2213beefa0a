package store

import "time"

type User struct {
	ID                    string
	Email                 string
	FirstName             string
	LastName              string
	DisplayName           string
	Role                  string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// RoleRecord is the role lookup result for an email address.
type RoleRecord struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Candidate is a flat record of parsed CV fields.
type Candidate struct {
	ID                string    `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Location          string    `json:"location"`
	LinkedInURL       string    `json:"linkedin_url"`
	CurrentTitle      string    `json:"current_title"`
	CurrentCompany    string    `json:"current_company"`
	CurrentSalary     string    `json:"current_salary"`
	ExpectedSalary    string    `json:"expected_salary"`
	NoticePeriod      string    `json:"notice_period"`
	YearsExperience   string    `json:"years_experience"`
	Skills            string    `json:"skills"`
	Education         string    `json:"education"`
	Languages         string    `json:"languages"`
	Summary           string    `json:"summary"`
	WillingToRelocate bool      `json:"willing_to_relocate"`
	AvailabilityDate  string    `json:"availability_date"`
	CVFilePath        string    `json:"cv_file_path"`
	CVURL             string    `json:"cv_url"`
	Notes             string    `json:"notes"`
	CreatedBy         string    `json:"created_by"`
	DateAdded         time.Time `json:"date_added"`
}

// FullName joins first and last name.
func (c Candidate) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

type CVDocument struct {
	Path       string
	Filename   string
	MediaType  string
	SizeBytes  int64
	Body       string
	UploadedBy string
	CreatedAt  time.Time
}

type Company struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	Industry      string    `json:"industry"`
	EmployeeCount string    `json:"employee_count"`
	Website       string    `json:"website"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
