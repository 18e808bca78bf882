package knowledge

import (
	"errors"
	"strings"
	"time"

	"github.com/yungbote/course-assistant-backend/internal/pkg/pointers"
)

const TableKnowledgeBases = "knowledge_bases"

var (
	ErrBlankCourse     = errors.New("course name is required")
	ErrPartialImage    = errors.New("image name, type and data must be set together")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Image is the optional picture attached to a course; Base64 holds the raw bytes encoded as text.
type Image struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Base64 string `json:"base64"`
}

// CourseRecord is one knowledge base entry. ID is zero until the store assigns one.
type CourseRecord struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Course  string `gorm:"column:course;not null;uniqueIndex" json:"course"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Links   string `gorm:"column:links;type:text;not null;default:''" json:"links"`

	ImageName   *string `gorm:"column:image_name" json:"image_name"`
	ImageType   *string `gorm:"column:image_type" json:"image_type"`
	ImageBase64 *string `gorm:"column:image_base64;type:text" json:"image_base64"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CourseRecord) TableName() string { return TableKnowledgeBases }

func (r *CourseRecord) Persisted() bool { return r != nil && r.ID > 0 }

// Image returns the attached image, or nil unless all three parts are present.
func (r *CourseRecord) Image() *Image {
	if r == nil || blank(r.ImageName) || blank(r.ImageType) || blank(r.ImageBase64) {
		return nil
	}
	return &Image{Name: *r.ImageName, Type: *r.ImageType, Base64: *r.ImageBase64}
}

func (r *CourseRecord) SetImage(img *Image) {
	if img == nil {
		r.ImageName, r.ImageType, r.ImageBase64 = nil, nil, nil
		return
	}
	r.ImageName = pointers.String(img.Name)
	r.ImageType = pointers.String(img.Type)
	r.ImageBase64 = pointers.String(img.Base64)
}

// NormalizeImage drops an incomplete image triple.
func (r *CourseRecord) NormalizeImage() {
	if r.Image() == nil {
		r.SetImage(nil)
	}
}

// Validate checks what the store cannot: a usable course name and an all-or-nothing image.
func (r *CourseRecord) Validate() error {
	if r == nil || strings.TrimSpace(r.Course) == "" {
		return ErrBlankCourse
	}
	set := 0
	for _, p := range []*string{r.ImageName, r.ImageType, r.ImageBase64} {
		if !blank(p) {
			set++
		}
	}
	if set != 0 && set != 3 {
		return ErrPartialImage
	}
	if set == 3 && !IsSupportedImageType(*r.ImageType) {
		return ErrUnsupportedType
	}
	return nil
}

// LinkList returns the non-empty reference links, one per line of Links.
func (r *CourseRecord) LinkList() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(r.Links, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (r *CourseRecord) Clone() *CourseRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ImageName = cloneString(r.ImageName)
	c.ImageType = cloneString(r.ImageType)
	c.ImageBase64 = cloneString(r.ImageBase64)
	return &c
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

func IsSupportedImageType(mimeType string) bool {
	return imageTypes[strings.ToLower(strings.TrimSpace(mimeType))]
}

func blank(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	return pointers.String(*s)
}
