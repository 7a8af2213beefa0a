package extract

import "strings"

// Schema is a fixed field allow-list with alternative key spellings.
type Schema struct {
	Name    string
	Fields  []string
	Aliases map[string]string
	// Transforms rewrite a field's value after cleaning. A transform returning
	// "" leaves the field unset.
	Transforms map[string]func(string) string
}

// Record maps every schema field to a string value, "" when unknown.
type Record map[string]string

func (s Schema) Empty() Record {
	out := make(Record, len(s.Fields))
	for _, field := range s.Fields {
		out[field] = ""
	}
	return out
}

// Canonical resolves key to a schema field. Matching ignores case, spaces,
// hyphens and underscores.
func (s Schema) Canonical(key string) (string, bool) {
	folded := foldKey(key)
	if folded == "" {
		return "", false
	}
	for _, field := range s.Fields {
		if foldKey(field) == folded {
			return field, true
		}
	}
	for alias, field := range s.Aliases {
		if foldKey(alias) == folded {
			return field, true
		}
	}
	return "", false
}

func foldKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	replacer := strings.NewReplacer("_", " ", "-", " ")
	return strings.Join(strings.Fields(replacer.Replace(key)), " ")
}

var CompanySchema = Schema{
	Name:   "company",
	Fields: []string{"name", "location", "industry", "employee_count", "website"},
	Aliases: map[string]string{
		"employees":      "employee_count",
		"company size":   "employee_count",
		"size":           "employee_count",
		"employee count": "employee_count",
		"headcount":      "employee_count",
		"company name":   "name",
		"company":        "name",
		"headquarters":   "location",
		"hq":             "location",
		"address":        "location",
		"url":            "website",
		"site":           "website",
		"homepage":       "website",
		"web":            "website",
		"sector":         "industry",
	},
}

var CandidateSchema = Schema{
	Name: "candidate",
	Fields: []string{
		"first_name", "last_name", "email", "phone", "location", "linkedin_url",
		"current_title", "current_company", "current_salary", "expected_salary",
		"notice_period", "years_experience", "skills", "education", "languages",
		"summary", "willing_to_relocate", "availability_date",
	},
	Aliases: map[string]string{
		"firstname":           "first_name",
		"given name":          "first_name",
		"lastname":            "last_name",
		"surname":             "last_name",
		"family name":         "last_name",
		"e-mail":              "email",
		"email address":       "email",
		"mobile":              "phone",
		"phone number":        "phone",
		"telephone":           "phone",
		"city":                "location",
		"linkedin":            "linkedin_url",
		"linkedin profile":    "linkedin_url",
		"title":               "current_title",
		"job title":           "current_title",
		"position":            "current_title",
		"employer":            "current_company",
		"company":             "current_company",
		"salary":              "current_salary",
		"expected":            "expected_salary",
		"notice":              "notice_period",
		"experience":          "years_experience",
		"years of experience": "years_experience",
		"relocation":          "willing_to_relocate",
		"relocate":            "willing_to_relocate",
		"availability":        "availability_date",
		"available from":      "availability_date",
	},
	Transforms: map[string]func(string) string{
		"willing_to_relocate": yesNo,
	},
}

// yesNo folds boolean-ish answers onto "yes"/"no" so the value survives the
// candidate save step unchanged.
func yesNo(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "true":
		return "yes"
	case "no", "n", "false":
		return "no"
	default:
		return value
	}
}
