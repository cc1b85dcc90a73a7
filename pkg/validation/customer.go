// pkg/validation/customer.go
package validation

import (
	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// CustomerRecord is the raw customer profile accepted for prediction
type CustomerRecord struct {
	Gender     string `json:"gender" validate:"required,gender"`
	Partner    string `json:"Partner" validate:"required,yesno"`
	Dependents string `json:"Dependents" validate:"required,yesno"`

	PhoneService  string `json:"PhoneService" validate:"required,yesno"`
	MultipleLines string `json:"MultipleLines" validate:"required,phoneline"`

	InternetService  string `json:"InternetService" validate:"required,internetkind"`
	OnlineSecurity   string `json:"OnlineSecurity" validate:"required,internetaddon"`
	OnlineBackup     string `json:"OnlineBackup" validate:"required,internetaddon"`
	DeviceProtection string `json:"DeviceProtection" validate:"required,internetaddon"`
	TechSupport      string `json:"TechSupport" validate:"required,internetaddon"`
	StreamingTV      string `json:"StreamingTV" validate:"required,internetaddon"`
	StreamingMovies  string `json:"StreamingMovies" validate:"required,internetaddon"`

	Contract         string `json:"Contract" validate:"required,contractkind"`
	PaperlessBilling string `json:"PaperlessBilling" validate:"required,yesno"`
	PaymentMethod    string `json:"PaymentMethod" validate:"required,paymentmethod"`

	// Pointers so that an absent number is told apart from 0
	Tenure         *int     `json:"tenure" validate:"required,tenuremonths"`
	MonthlyCharges *float64 `json:"MonthlyCharges" validate:"required,monthlycharges"`
	TotalCharges   *float64 `json:"TotalCharges" validate:"required,gte=0"`

	// Optional; treated as 0 when absent
	SeniorCitizen *int `json:"SeniorCitizen,omitempty" validate:"omitempty,seniorcitizen"`
}

// Validate checks the record against the telco schema
func (c *CustomerRecord) Validate() *RequestValidationError {
	return ValidateStruct(c)
}

// Record converts the profile into an encoder input record. Absent numbers
// are left out so that the encoder reports them as missing fields.
func (c *CustomerRecord) Record() model.Record {
	senior := int64(0)
	if c.SeniorCitizen != nil {
		senior = int64(*c.SeniorCitizen)
	}

	rec := model.Record{
		"gender":           model.Text(c.Gender),
		"SeniorCitizen":    model.Int(senior),
		"Partner":          model.Text(c.Partner),
		"Dependents":       model.Text(c.Dependents),
		"PhoneService":     model.Text(c.PhoneService),
		"MultipleLines":    model.Text(c.MultipleLines),
		"InternetService":  model.Text(c.InternetService),
		"OnlineSecurity":   model.Text(c.OnlineSecurity),
		"OnlineBackup":     model.Text(c.OnlineBackup),
		"DeviceProtection": model.Text(c.DeviceProtection),
		"TechSupport":      model.Text(c.TechSupport),
		"StreamingTV":      model.Text(c.StreamingTV),
		"StreamingMovies":  model.Text(c.StreamingMovies),
		"Contract":         model.Text(c.Contract),
		"PaperlessBilling": model.Text(c.PaperlessBilling),
		"PaymentMethod":    model.Text(c.PaymentMethod),
	}
	if c.Tenure != nil {
		rec["tenure"] = model.Int(int64(*c.Tenure))
	}
	if c.MonthlyCharges != nil {
		rec["MonthlyCharges"] = model.Float(*c.MonthlyCharges)
	}
	if c.TotalCharges != nil {
		rec["TotalCharges"] = model.Float(*c.TotalCharges)
	}
	return rec
}

// Ptr returns a pointer to v, for filling the optional and numeric fields
func Ptr[T any](v T) *T {
	return &v
}

// SampleCustomer returns a valid profile: a new fiber customer on a monthly
// contract
func SampleCustomer() CustomerRecord {
	return CustomerRecord{
		Gender:           "Female",
		Partner:          "No",
		Dependents:       "No",
		PhoneService:     "Yes",
		MultipleLines:    "No",
		InternetService:  "Fiber optic",
		OnlineSecurity:   "No",
		OnlineBackup:     "No",
		DeviceProtection: "No",
		TechSupport:      "No",
		StreamingTV:      "Yes",
		StreamingMovies:  "Yes",
		Contract:         "Month-to-month",
		PaperlessBilling: "Yes",
		PaymentMethod:    "Electronic check",
		Tenure:           Ptr(1),
		MonthlyCharges:   Ptr(85.0),
		TotalCharges:     Ptr(85.0),
	}
}
