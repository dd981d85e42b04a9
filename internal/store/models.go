package store

import (
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/normalize"
)

// Artifact names a pipeline stage output. A job without the artifact row is
// unprocessed for that stage.
type Artifact string

const (
	ArtifactEntities   Artifact = "entities"
	ArtifactDedupe     Artifact = "dedupe"
	ArtifactEmbeddings Artifact = "embeddings"
)

// RawJob is an ingested posting before normalization.
type RawJob struct {
	Source            string
	URL               string
	URLHash           string
	TitleRaw          string
	DescriptionRaw    string
	RequirementsRaw   string
	SalaryText        string
	LocationRaw       string
	CompanyRaw        string
	EmploymentTypeRaw string
	PostedAt          *time.Time
}

// Normalized holds the extractor outputs stored on job_posts.
type Normalized struct {
	TitleFamily       string
	TitleCanonical    string
	Seniority         string
	Education         string
	ExperienceMin     *int
	ExperienceMax     *int
	LocationCanonical string
	Country           string
	IsRemote          bool
	CompanyCanonical  string
	EmploymentType    string
	SalaryMin         *float64
	SalaryMax         *float64
	Currency          string
	SalaryPeriod      string
	QualityScore      *float64
}

// JobPost is a row of job_posts. Ids grow in ingestion order, so the
// smallest id of a group is the earliest seen.
type JobPost struct {
	ID int64
	RawJob
	Normalized
	TitleNormID      *int64
	IngestedAt       time.Time
	ProcessedAt      *time.Time
	IsActive         bool
	QuarantineReason string
	QuarantinedAt    *time.Time
}

// Entities is the JSON document stored in job_entities.
type Entities struct {
	Skills         []normalize.Field `json:"skills"`
	Education      normalize.Field   `json:"education"`
	Experience     normalize.Field   `json:"experience"`
	Title          normalize.Field   `json:"title"`
	Seniority      normalize.Field   `json:"seniority"`
	Location       normalize.Field   `json:"location"`
	Company        normalize.Field   `json:"company"`
	Salary         normalize.Field   `json:"salary"`
	EmploymentType normalize.Field   `json:"employment_type"`
}

type Skill struct {
	ID   int64
	Name string
}

type JobSkill struct {
	JobID      int64
	SkillID    int64
	Skill      string
	Confidence float64
	Source     string
	Evidence   string
}

type TitleNorm struct {
	ID             int64
	Family         string
	TitleCanonical string
	Aliases        []string
}

// EntitiesUpdate is everything the entities stage writes for one job.
type EntitiesUpdate struct {
	JobID       int64
	Entities    Entities
	Normalized  Normalized
	TitleNorm   *TitleNorm
	Skills      []JobSkill
	ProcessedAt time.Time
}

type DedupeMap struct {
	JobID          int64
	CanonicalJobID int64
	Similarity     float64
	Status         dedupe.Status
	CreatedAt      time.Time
	ReviewedAt     *time.Time
	ReviewedBy     string
}

// SelfMapped reports whether the row maps the job onto itself.
func (m DedupeMap) SelfMapped() bool {
	return m.JobID == m.CanonicalJobID
}

type JobEmbedding struct {
	JobID     int64
	Vector    pgvector.Vector
	Model     string
	Dimension int
	CreatedAt time.Time
}

type PipelineRun struct {
	RunID        string
	Stage        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Processed    int
	Found        int
	Failed       int
	BaselineSize int
	Status       string
}

// JobFilter narrows ListJobs. Empty fields match everything.
type JobFilter struct {
	TitleFamily string
	Seniority   string
	Location    string
	Company     string
	ActiveOnly  bool
	AfterID     int64
	Limit       int
}

// DedupeFilter narrows ListDedupe.
type DedupeFilter struct {
	Status dedupe.Status
	// DuplicatesOnly skips self-mapped rows.
	DuplicatesOnly bool
	Limit          int
}

// Stats are the corpus counts behind a quality snapshot.
type Stats struct {
	Total      int
	Active     int
	Processed  int
	Coverage   map[string]int
	AvgQuality float64
	DedupeRows int
	Duplicates int
}
