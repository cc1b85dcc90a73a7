// pkg/serving/ui.go
package serving

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/validation"
)

//go:embed templates/ui.html
var templateFS embed.FS

// formField is one input of the customer form
type formField struct {
	Name    string
	Group   string
	Options []string // select when set, number input otherwise
	Value   string
}

var (
	yesNo         = []string{"Yes", "No"}
	internetAddon = []string{"Yes", "No", "No internet service"}
)

// customerForm lists the inputs in display order
var customerForm = []formField{
	{Name: "gender", Group: "Demographics", Options: []string{"Male", "Female"}},
	{Name: "SeniorCitizen", Group: "Demographics", Options: []string{"0", "1"}},
	{Name: "Partner", Group: "Demographics", Options: yesNo},
	{Name: "Dependents", Group: "Demographics", Options: yesNo},
	{Name: "PhoneService", Group: "Phone", Options: yesNo},
	{Name: "MultipleLines", Group: "Phone", Options: []string{"Yes", "No", "No phone service"}},
	{Name: "InternetService", Group: "Internet", Options: []string{"DSL", "Fiber optic", "No"}},
	{Name: "OnlineSecurity", Group: "Internet", Options: internetAddon},
	{Name: "OnlineBackup", Group: "Internet", Options: internetAddon},
	{Name: "DeviceProtection", Group: "Internet", Options: internetAddon},
	{Name: "TechSupport", Group: "Internet", Options: internetAddon},
	{Name: "StreamingTV", Group: "Internet", Options: internetAddon},
	{Name: "StreamingMovies", Group: "Internet", Options: internetAddon},
	{Name: "Contract", Group: "Contract and billing", Options: []string{"Month-to-month", "One year", "Two year"}},
	{Name: "PaperlessBilling", Group: "Contract and billing", Options: yesNo},
	{Name: "PaymentMethod", Group: "Contract and billing", Options: []string{
		"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)",
	}},
	{Name: "tenure", Group: "Usage"},
	{Name: "MonthlyCharges", Group: "Usage"},
	{Name: "TotalCharges", Group: "Usage"},
}

type formGroup struct {
	Name   string
	Fields []formField
}

type formView struct {
	Groups     []formGroup
	Prediction *Prediction
	Errors     []string
}

type formPage struct {
	tmpl *template.Template
}

func newFormPage() (*formPage, error) {
	tmpl, err := template.New("ui.html").Funcs(template.FuncMap{
		"percent": func(p float64) string { return fmt.Sprintf("%.1f%%", p*100) },
	}).ParseFS(templateFS, "templates/ui.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse form template: %w", err)
	}
	return &formPage{tmpl: tmpl}, nil
}

// render writes the page with the form filled from values
func (p *formPage) render(w http.ResponseWriter, status int, values map[string]string, pred *Prediction, errs []string) error {
	view := formView{Prediction: pred, Errors: errs}
	for _, f := range customerForm {
		f.Value = values[f.Name]
		if n := len(view.Groups); n == 0 || view.Groups[n-1].Name != f.Group {
			view.Groups = append(view.Groups, formGroup{Name: f.Group})
		}
		g := &view.Groups[len(view.Groups)-1]
		g.Fields = append(g.Fields, f)
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, view); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// customerValues flattens a profile into form values
func customerValues(c validation.CustomerRecord) map[string]string {
	senior := "0"
	if c.SeniorCitizen != nil {
		senior = strconv.Itoa(*c.SeniorCitizen)
	}
	var tenure, monthly, total string
	if c.Tenure != nil {
		tenure = strconv.Itoa(*c.Tenure)
	}
	if c.MonthlyCharges != nil {
		monthly = strconv.FormatFloat(*c.MonthlyCharges, 'f', -1, 64)
	}
	if c.TotalCharges != nil {
		total = strconv.FormatFloat(*c.TotalCharges, 'f', -1, 64)
	}
	return map[string]string{
		"gender":           c.Gender,
		"SeniorCitizen":    senior,
		"Partner":          c.Partner,
		"Dependents":       c.Dependents,
		"PhoneService":     c.PhoneService,
		"MultipleLines":    c.MultipleLines,
		"InternetService":  c.InternetService,
		"OnlineSecurity":   c.OnlineSecurity,
		"OnlineBackup":     c.OnlineBackup,
		"DeviceProtection": c.DeviceProtection,
		"TechSupport":      c.TechSupport,
		"StreamingTV":      c.StreamingTV,
		"StreamingMovies":  c.StreamingMovies,
		"Contract":         c.Contract,
		"PaperlessBilling": c.PaperlessBilling,
		"PaymentMethod":    c.PaymentMethod,
		"tenure":           tenure,
		"MonthlyCharges":   monthly,
		"TotalCharges":     total,
	}
}

// customerFromForm reads a profile from submitted form values. Numbers that
// do not parse are reported per field.
func customerFromForm(form url.Values) (validation.CustomerRecord, []string) {
	c := validation.CustomerRecord{
		Gender:           form.Get("gender"),
		Partner:          form.Get("Partner"),
		Dependents:       form.Get("Dependents"),
		PhoneService:     form.Get("PhoneService"),
		MultipleLines:    form.Get("MultipleLines"),
		InternetService:  form.Get("InternetService"),
		OnlineSecurity:   form.Get("OnlineSecurity"),
		OnlineBackup:     form.Get("OnlineBackup"),
		DeviceProtection: form.Get("DeviceProtection"),
		TechSupport:      form.Get("TechSupport"),
		StreamingTV:      form.Get("StreamingTV"),
		StreamingMovies:  form.Get("StreamingMovies"),
		Contract:         form.Get("Contract"),
		PaperlessBilling: form.Get("PaperlessBilling"),
		PaymentMethod:    form.Get("PaymentMethod"),
	}

	// Empty inputs stay nil and are reported by validation as required
	var errs []string
	parseInt := func(name string) *int {
		raw := form.Get(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, name+": must be a whole number")
			return nil
		}
		return &v
	}
	parseFloat := func(name string) *float64 {
		raw := form.Get(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, name+": must be a number")
			return nil
		}
		return &v
	}

	c.Tenure = parseInt("tenure")
	c.MonthlyCharges = parseFloat("MonthlyCharges")
	c.TotalCharges = parseFloat("TotalCharges")
	c.SeniorCitizen = parseInt("SeniorCitizen")
	return c, errs
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if err := s.ui.render(w, http.StatusOK, customerValues(validation.SampleCustomer()), nil, nil); err != nil {
		s.logger.Error("Failed to render form", zap.Error(err))
	}
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	values := make(map[string]string, len(customerForm))
	for _, f := range customerForm {
		values[f.Name] = r.PostForm.Get(f.Name)
	}

	customer, errs := customerFromForm(r.PostForm)
	if len(errs) == 0 {
		if verr := customer.Validate(); verr != nil {
			for _, fe := range verr.Errors() {
				errs = append(errs, fe.Error())
			}
		}
	}

	var (
		pred   *Prediction
		status = http.StatusOK
	)
	if len(errs) > 0 {
		status = http.StatusUnprocessableEntity
	} else {
		var err error
		if pred, err = s.score(&customer); err != nil {
			s.logger.Error("Prediction failed", zap.Error(err))
			errs = append(errs, err.Error())
			status = http.StatusInternalServerError
		}
	}

	if err := s.ui.render(w, status, values, pred, errs); err != nil {
		s.logger.Error("Failed to render form", zap.Error(err))
	}
}
