package course

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cs61as/coursesite/core"
)

type Unit struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

type Video struct {
	Name string `json:"name" validate:"required,max=256"`
	URL  string `json:"url" validate:"required,httpurl"`
}

type Reading struct {
	Name string `json:"name" validate:"required,max=256"`
	URL  string `json:"url" validate:"required,httpurl"`
	SICP bool   `json:"sicp"`
}

type Extra struct {
	Name string `json:"name" validate:"required,max=256"`
	URL  string `json:"url" validate:"required,httpurl"`
}

type Homework struct {
	Name string `json:"name"`
	URL  string `json:"url" validate:"omitempty,httpurl"`
}

type Project struct {
	Name  string   `json:"name" validate:"required,max=256"`
	URL   string   `json:"url" validate:"omitempty,httpurl"`
	Parts []string `json:"parts,omitempty"`
}

type Lesson struct {
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	Unit      int       `json:"unit"`
	Videos    []Video   `json:"videos"`
	Readings  []Reading `json:"readings"`
	Extras    []Extra   `json:"extras"`
	Homework  Homework  `json:"homework"`
	Project   *Project  `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// ProjectLen is the number of completion flags of the lesson project:
// one per part, one for a project without parts, none without a project.
func (l Lesson) ProjectLen() int {
	if l.Project == nil {
		return 0
	}
	if len(l.Project.Parts) == 0 {
		return 1
	}
	return len(l.Project.Parts)
}

// ProjectPartName names the i-th project flag.
func (l Lesson) ProjectPartName(i int) string {
	if l.Project == nil {
		return ""
	}
	if i >= 0 && i < len(l.Project.Parts) {
		return l.Project.Name + ": " + l.Project.Parts[i]
	}
	return l.Project.Name
}

// Catalog is the whole course content, as loaded by the admin CLI.
type Catalog struct {
	Units   []Unit   `json:"units"`
	Lessons []Lesson `json:"lessons"`
}

type UnitInput struct {
	Number int    `json:"number" form:"number" validate:"gte=0"`
	Name   string `json:"name" form:"name" validate:"required,max=128"`
}

func (ui *UnitInput) Validate(validate *validator.Validate) error {
	ui.Name = core.CleanString(ui.Name)
	return validate.Struct(ui)
}

// LessonInput is the admin lesson form.
// Items are entered one per line as `name | url`; readings accept a trailing `| sicp` flag.
type LessonInput struct {
	Number       int    `json:"number" form:"number" validate:"gte=1"`
	Name         string `json:"name" form:"name" validate:"required,max=256"`
	Unit         int    `json:"unit" form:"unit" validate:"gte=0"`
	Videos       string `json:"videos" form:"videos"`
	Readings     string `json:"readings" form:"readings"`
	Extras       string `json:"extras" form:"extras"`
	HomeworkName string `json:"homework_name" form:"homework_name" validate:"max=256"`
	HomeworkURL  string `json:"homework_url" form:"homework_url" validate:"omitempty,httpurl"`
	ProjectName  string `json:"project_name" form:"project_name" validate:"required_with=ProjectURL,max=256"`
	ProjectURL   string `json:"project_url" form:"project_url" validate:"omitempty,httpurl"`
	ProjectParts string `json:"project_parts" form:"project_parts"` // comma separated

	lesson Lesson
}

// Validate cleans and validates the input and builds the Lesson it describes.
func (li *LessonInput) Validate(validate *validator.Validate) error {
	li.Name = core.CleanString(li.Name)
	li.HomeworkName = core.CleanString(li.HomeworkName)
	li.HomeworkURL = core.CleanString(li.HomeworkURL)
	li.ProjectName = core.CleanString(li.ProjectName)
	li.ProjectURL = core.CleanString(li.ProjectURL)
	if err := validate.Struct(li); err != nil {
		return err
	}

	l := Lesson{
		Number:   li.Number,
		Name:     li.Name,
		Unit:     li.Unit,
		Homework: Homework{Name: li.HomeworkName, URL: li.HomeworkURL},
		Videos:   []Video{},
		Readings: []Reading{},
		Extras:   []Extra{},
	}
	for i, line := range splitLines(li.Videos) {
		name, url, _ := splitItem(line)
		l.Videos = append(l.Videos, Video{Name: name, URL: url})
		if err := validateItem(validate, l.Videos[i], "videos"); err != nil {
			return err
		}
	}
	for i, line := range splitLines(li.Readings) {
		name, url, flag := splitItem(line)
		l.Readings = append(l.Readings, Reading{Name: name, URL: url, SICP: strings.EqualFold(flag, "sicp")})
		if err := validateItem(validate, l.Readings[i], "readings"); err != nil {
			return err
		}
	}
	for i, line := range splitLines(li.Extras) {
		name, url, _ := splitItem(line)
		l.Extras = append(l.Extras, Extra{Name: name, URL: url})
		if err := validateItem(validate, l.Extras[i], "extras"); err != nil {
			return err
		}
	}
	if li.ProjectName != "" {
		l.Project = &Project{Name: li.ProjectName, URL: li.ProjectURL}
		for _, part := range strings.Split(li.ProjectParts, ",") {
			if part = core.CleanString(part); part != "" {
				l.Project.Parts = append(l.Project.Parts, part)
			}
		}
	}
	li.lesson = l
	return nil
}

// Lesson returns the Lesson built by Validate.
func (li *LessonInput) Lesson() Lesson {
	return li.lesson
}

// NewLessonInput fills the admin lesson form from an existing Lesson.
func NewLessonInput(l Lesson) LessonInput {
	li := LessonInput{
		Number:       l.Number,
		Name:         l.Name,
		Unit:         l.Unit,
		HomeworkName: l.Homework.Name,
		HomeworkURL:  l.Homework.URL,
	}
	lines := make([]string, 0, len(l.Videos))
	for _, v := range l.Videos {
		lines = append(lines, v.Name+" | "+v.URL)
	}
	li.Videos = strings.Join(lines, "\n")

	lines = lines[:0]
	for _, r := range l.Readings {
		line := r.Name + " | " + r.URL
		if r.SICP {
			line += " | sicp"
		}
		lines = append(lines, line)
	}
	li.Readings = strings.Join(lines, "\n")

	lines = lines[:0]
	for _, e := range l.Extras {
		lines = append(lines, e.Name+" | "+e.URL)
	}
	li.Extras = strings.Join(lines, "\n")

	if l.Project != nil {
		li.ProjectName = l.Project.Name
		li.ProjectURL = l.Project.URL
		li.ProjectParts = strings.Join(l.Project.Parts, ", ")
	}
	return li
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = core.CleanString(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitItem(line string) (name, url, flag string) {
	parts := strings.SplitN(line, "|", 3)
	name = core.CleanString(parts[0])
	if len(parts) > 1 {
		url = core.CleanString(parts[1])
	}
	if len(parts) > 2 {
		flag = core.CleanString(parts[2])
	}
	return name, url, flag
}

func validateItem(validate *validator.Validate, item interface{}, field string) error {
	if err := validate.Struct(item); err != nil {
		return core.NewValidationError(ErrInvalidItem, core.FieldError{Field: field, Error: ErrInvalidItem.Error()})
	}
	return nil
}
