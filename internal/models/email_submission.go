package models

// EmailSubmission is a contact-form post. It lives only as long as the request.
type EmailSubmission struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Subject string `json:"subject" form:"subject"`
	Content string `json:"content" form:"content"`
}

// MissingFields returns the names of empty fields in declaration order.
func (s EmailSubmission) MissingFields() []string {
	var missing []string
	if s.Name == "" {
		missing = append(missing, "name")
	}
	if s.Email == "" {
		missing = append(missing, "email")
	}
	if s.Subject == "" {
		missing = append(missing, "subject")
	}
	if s.Content == "" {
		missing = append(missing, "content")
	}
	return missing
}
