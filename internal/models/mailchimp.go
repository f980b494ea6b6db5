package models

import "strings"

// MemberStatus is the provider's subscription status enum.
type MemberStatus string

const (
	StatusSubscribed MemberStatus = "subscribed"
	StatusPending    MemberStatus = "pending" // Sends a confirmation email (double opt-in)
)

// MergeFieldType enumerates merge field types known to the provider.
type MergeFieldType string

const (
	MergeText     MergeFieldType = "text"
	MergeNumber   MergeFieldType = "number"
	MergeAddress  MergeFieldType = "address"
	MergePhone    MergeFieldType = "phone"
	MergeDate     MergeFieldType = "date"
	MergeURL      MergeFieldType = "url"
	MergeImageURL MergeFieldType = "imageurl"
	MergeRadio    MergeFieldType = "radio"
	MergeDropdown MergeFieldType = "dropdown"
	MergeBirthday MergeFieldType = "birthday"
	MergeZip      MergeFieldType = "zip"
)

var mergeFieldTypes = []MergeFieldType{
	MergeText, MergeNumber, MergeAddress, MergePhone, MergeDate, MergeURL,
	MergeImageURL, MergeRadio, MergeDropdown, MergeBirthday, MergeZip,
}

// Known reports whether t is one of the documented types.
func (t MergeFieldType) Known() bool {
	for _, k := range mergeFieldTypes {
		if strings.EqualFold(string(t), string(k)) {
			return true
		}
	}
	return false
}

// IsAddress reports whether values of this type must be sent as an [Address] object.
func (t MergeFieldType) IsAddress() bool {
	return strings.EqualFold(string(t), string(MergeAddress))
}

// Category is an interest category (a "group" in the provider UI).
type Category struct {
	ID     string `json:"id"`
	ListID string `json:"list_id,omitempty"`
	Title  string `json:"title"`
	Type   string `json:"type,omitempty"`
}

// Interest is one option inside a [Category].
type Interest struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
}

// MergeField is a custom member attribute defined on the list.
type MergeField struct {
	MergeID int            `json:"merge_id"`
	Tag     string         `json:"tag"`
	Name    string         `json:"name"`
	Type    MergeFieldType `json:"type"`
}

// Address is the structured value of an address merge field.
// Field order is the wire order required by the provider: addr1, addr2, city, state, zip, country.
type Address struct {
	Addr1   string `json:"addr1"`
	Addr2   string `json:"addr2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Member is the upsert payload for one contact.
type Member struct {
	EmailAddress string          `json:"email_address"`
	Status       MemberStatus    `json:"status"`
	MergeFields  map[string]any  `json:"merge_fields"`
	Interests    map[string]bool `json:"interests,omitempty"`
	Language     string          `json:"language,omitempty"`
}

// BatchRequest is the body of POST /lists/{id}.
type BatchRequest struct {
	Members        []Member `json:"members"`
	UpdateExisting bool     `json:"update_existing"`
}

// MemberError is a per-member rejection inside an otherwise successful batch.
type MemberError struct {
	EmailAddress string `json:"email_address"`
	Error        string `json:"error"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchResponse is the provider's answer to a [BatchRequest].
type BatchResponse struct {
	TotalCreated int           `json:"total_created"`
	TotalUpdated int           `json:"total_updated"`
	ErrorCount   int           `json:"error_count"`
	Errors       []MemberError `json:"errors"`
}

// Metadata is the reference data resolved once per run.
//
// Map keys are lower-cased: category titles for Categories and Interests, tags for MergeFields.
type Metadata struct {
	Categories  map[string]Category
	Interests   map[string][]Interest
	MergeFields map[string]MergeField
}

// InterestsFor returns the interests of the category titled name, in API order.
func (m *Metadata) InterestsFor(name string) []Interest {
	if m == nil {
		return nil
	}
	return m.Interests[strings.ToLower(name)]
}

// MergeField returns the merge field with the given tag, ignoring case.
func (m *Metadata) MergeField(tag string) (MergeField, bool) {
	if m == nil {
		return MergeField{}, false
	}
	f, ok := m.MergeFields[strings.ToLower(tag)]
	return f, ok
}
