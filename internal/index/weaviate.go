package index

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/normalize"
)

// Weaviate class names.
const (
	CompanyClass  = "Company"
	EmployeeClass = "Employee"
)

// WeaviateConfig configures the Weaviate indexer.
type WeaviateConfig struct {
	Host       string
	Scheme     string
	APIKey     string
	Vectorizer string
}

// Weaviate indexes documents into Weaviate. Object IDs are derived from
// the normalized keys so re-indexing the same company updates in place.
type Weaviate struct {
	client     *weaviate.Client
	vectorizer string
}

// NewWeaviate creates a Weaviate indexer. It does not contact the server.
func NewWeaviate(cfg WeaviateConfig) (*Weaviate, error) {
	wc := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	if cfg.APIKey != "" {
		wc.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wc)
	if err != nil {
		return nil, eris.Wrap(err, "index: weaviate client")
	}
	v := cfg.Vectorizer
	if v == "" {
		v = "none"
	}
	return &Weaviate{client: client, vectorizer: v}, nil
}

func textProperty(name, tokenization string) *models.Property {
	return &models.Property{Name: name, DataType: []string{"text"}, Tokenization: tokenization}
}

func (w *Weaviate) classes() []*models.Class {
	return []*models.Class{
		{
			Class:       CompanyClass,
			Description: "A researched company.",
			Vectorizer:  w.vectorizer,
			Properties: []*models.Property{
				textProperty("text", "word"),
				textProperty("name", "word"),
				textProperty("website", "field"),
				textProperty("industry", "word"),
				{Name: "companyId", DataType: []string{"int"}},
			},
		},
		{
			Class:       EmployeeClass,
			Description: "A leadership contact at a researched company.",
			Vectorizer:  w.vectorizer,
			Properties: []*models.Property{
				textProperty("text", "word"),
				textProperty("name", "word"),
				textProperty("title", "word"),
				textProperty("company", "word"),
				textProperty("email", "field"),
				{Name: "companyId", DataType: []string{"int"}},
			},
		},
	}
}

// EnsureSchema creates the company and employee classes if missing.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	for _, class := range w.classes() {
		if _, err := w.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx); err == nil {
			continue
		}
		zap.L().Info("index: creating weaviate class", zap.String("class", class.Class))
		if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return eris.Wrapf(err, "index: create class %s", class.Class)
		}
	}
	return nil
}

// CompanyID is the deterministic object ID for a company.
func CompanyID(c model.Company) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("company:"+normalize.CompanyKey(c.Name))).String()
}

// EmployeeID is the deterministic object ID for an employee.
func EmployeeID(e model.Employee) string {
	key := strconv.FormatInt(e.CompanyID, 10) + ":" + normalize.PersonKey(e.Name)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("employee:"+key)).String()
}

func (w *Weaviate) IndexCompany(ctx context.Context, c model.Company) error {
	props := map[string]any{
		"text":      CompanyText(c),
		"name":      c.Name,
		"website":   deref(c.Website),
		"industry":  deref(c.Industry),
		"companyId": c.ID,
	}
	return w.upsert(ctx, CompanyClass, CompanyID(c), props)
}

func (w *Weaviate) IndexEmployee(ctx context.Context, e model.Employee, company string) error {
	props := map[string]any{
		"text":      EmployeeText(e, company),
		"name":      e.Name,
		"title":     e.Title,
		"company":   company,
		"email":     e.Email,
		"companyId": e.CompanyID,
	}
	return w.upsert(ctx, EmployeeClass, EmployeeID(e), props)
}

func (w *Weaviate) upsert(ctx context.Context, class, id string, props map[string]any) error {
	exists, err := w.client.Data().Checker().WithClassName(class).WithID(id).Do(ctx)
	if err != nil {
		return eris.Wrapf(err, "index: check %s %s", class, id)
	}
	if exists {
		err = w.client.Data().Updater().
			WithMerge().
			WithClassName(class).
			WithID(id).
			WithProperties(props).
			Do(ctx)
		return eris.Wrapf(err, "index: update %s %s", class, id)
	}
	_, err = w.client.Data().Creator().
		WithClassName(class).
		WithID(id).
		WithProperties(props).
		Do(ctx)
	return eris.Wrapf(err, "index: create %s %s", class, id)
}
