package ai

import "fmt"

// CVPrompt asks for the candidate fields as a single JSON object.
const CVPrompt = `You are a recruiting assistant. Read the attached CV and extract the candidate's details.
Respond with a single JSON object and nothing else, using exactly these keys:
first_name, last_name, email, phone, location, linkedin_url, current_title, current_company,
current_salary, expected_salary, notice_period, years_experience, skills, education, languages,
summary, willing_to_relocate, availability_date.
Use strings for every value. skills, education and languages are comma-separated lists.
willing_to_relocate is "yes" or "no". Use an empty string when a value is not stated in the CV.`

// CompanyPrompt asks for company facts in key: value lines.
func CompanyPrompt(name, website string) string {
	subject := name
	if website != "" {
		subject = fmt.Sprintf("%s (%s)", name, website)
	}
	return fmt.Sprintf(`Provide factual company information for %s.
Answer with one line per field in the form "Field: value" using these fields:
Name, Location, Industry, Employee Count, Website.
Write N/A for anything you are not confident about. Do not add other text.`, subject)
}
