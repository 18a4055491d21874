package record

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Service is a consultancy offering shown on the public site. Content fields
// are bilingual (Arabic/English).
type Service struct {
	bun.BaseModel `bun:"table:services,alias:svc"`
	Model

	TitleEn       string `bun:"title_en,notnull" json:"title_en"`
	TitleAr       string `bun:"title_ar,notnull" json:"title_ar"`
	DescriptionEn string `bun:"description_en" json:"description_en"`
	DescriptionAr string `bun:"description_ar" json:"description_ar"`
	Icon          string `bun:"icon" json:"icon"`
	SortOrder     int    `bun:"sort_order" json:"sort_order"`
	Published     bool   `bun:"published" json:"published"`
}

func (s *Service) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.TitleEn, validation.Required, validation.Length(2, 200)),
		validation.Field(&s.TitleAr, validation.Required, validation.Length(2, 200)),
		validation.Field(&s.DescriptionEn, validation.Length(0, 5000)),
		validation.Field(&s.DescriptionAr, validation.Length(0, 5000)),
	)
}

// Project is a delivered engagement, typically an Oracle ERP rollout.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:prj"`
	Model

	TitleEn       string `bun:"title_en,notnull" json:"title_en"`
	TitleAr       string `bun:"title_ar,notnull" json:"title_ar"`
	DescriptionEn string `bun:"description_en" json:"description_en"`
	DescriptionAr string `bun:"description_ar" json:"description_ar"`
	ClientName    string `bun:"client_name" json:"client_name"`
	Sector        string `bun:"sector" json:"sector"`
	Year          int    `bun:"year" json:"year"`
	Published     bool   `bun:"published" json:"published"`
}

func (p *Project) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.TitleEn, validation.Required, validation.Length(2, 200)),
		validation.Field(&p.TitleAr, validation.Required, validation.Length(2, 200)),
		validation.Field(&p.Year, validation.Min(1990), validation.Max(2100)),
	)
}

// Client is a customer logo entry.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:cli"`
	Model

	NameEn    string `bun:"name_en,notnull" json:"name_en"`
	NameAr    string `bun:"name_ar,notnull" json:"name_ar"`
	LogoURL   string `bun:"logo_url" json:"logo_url"`
	Website   string `bun:"website" json:"website"`
	SortOrder int    `bun:"sort_order" json:"sort_order"`
}

func (c *Client) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.NameEn, validation.Required, validation.Length(2, 200)),
		validation.Field(&c.NameAr, validation.Required, validation.Length(2, 200)),
		validation.Field(&c.Website, is.URL),
	)
}

// Partner is a technology partner entry.
type Partner struct {
	bun.BaseModel `bun:"table:partners,alias:prt"`
	Model

	NameEn    string `bun:"name_en,notnull" json:"name_en"`
	NameAr    string `bun:"name_ar,notnull" json:"name_ar"`
	LogoURL   string `bun:"logo_url" json:"logo_url"`
	Website   string `bun:"website" json:"website"`
	SortOrder int    `bun:"sort_order" json:"sort_order"`
}

func (p *Partner) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.NameEn, validation.Required, validation.Length(2, 200)),
		validation.Field(&p.NameAr, validation.Required, validation.Length(2, 200)),
		validation.Field(&p.Website, is.URL),
	)
}

// Brochure is a downloadable document; the file itself lives in object
// storage under FileKey.
type Brochure struct {
	bun.BaseModel `bun:"table:brochures,alias:bro"`
	Model

	TitleEn     string `bun:"title_en,notnull" json:"title_en"`
	TitleAr     string `bun:"title_ar,notnull" json:"title_ar"`
	FileKey     string `bun:"file_key,notnull" json:"file_key"`
	FileSize    int64  `bun:"file_size" json:"file_size"`
	ContentType string `bun:"content_type" json:"content_type"`
	Published   bool   `bun:"published" json:"published"`
}

func (b *Brochure) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.TitleEn, validation.Required, validation.Length(2, 200)),
		validation.Field(&b.TitleAr, validation.Required, validation.Length(2, 200)),
		validation.Field(&b.FileKey, validation.Required),
	)
}

// Setting is a key/value pair for site-wide configuration.
type Setting struct {
	bun.BaseModel `bun:"table:settings,alias:set"`
	Model

	Key     string `bun:"key,notnull,unique" json:"key"`
	ValueEn string `bun:"value_en" json:"value_en"`
	ValueAr string `bun:"value_ar" json:"value_ar"`
	Group   string `bun:"grouping" json:"group"`
}

func (s *Setting) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Key, validation.Required, validation.Length(1, 100)),
	)
}

// User is an admin account mirrored from the identity provider.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	Model

	Email        string `bun:"email,notnull,unique" json:"email"`
	FullName     string `bun:"full_name" json:"full_name"`
	Role         string `bun:"role,notnull" json:"role"`
	PasswordHash string `bun:"password_hash,notnull" json:"-"`
	Verified     bool   `bun:"verified,notnull" json:"verified"`
	Active       bool   `bun:"active,notnull" json:"active"`
}

func (u *User) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required, is.Email),
		validation.Field(&u.Role, validation.Required, validation.In("admin", "editor")),
	)
}

// ContactSubmission is a public contact-form entry. Submissions are immutable
// once created: there is no updated_at column and the store rejects updates.
type ContactSubmission struct {
	bun.BaseModel `bun:"table:contact_submissions,alias:cs"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,notnull" json:"email"`
	Phone     string    `bun:"phone" json:"phone"`
	Company   string    `bun:"company" json:"company"`
	Message   string    `bun:"message,notnull" json:"message"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

func (c *ContactSubmission) RecordID() string { return c.ID }

func (c *ContactSubmission) EnsureID() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
}

func (c *ContactSubmission) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Length(2, 200)),
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Message, validation.Required, validation.Length(10, 5000)),
	)
}

func (c *ContactSubmission) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		c.EnsureID()
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

var (
	_ bun.BeforeAppendModelHook = (*Service)(nil)
	_ bun.BeforeAppendModelHook = (*ContactSubmission)(nil)

	_ Record = (*Service)(nil)
	_ Record = (*Project)(nil)
	_ Record = (*Client)(nil)
	_ Record = (*Partner)(nil)
	_ Record = (*Brochure)(nil)
	_ Record = (*Setting)(nil)
	_ Record = (*User)(nil)
	_ Record = (*ContactSubmission)(nil)
)
