package model

// HTTP request/response shapes.

type BuildRequest struct {
	TechnicianID     int64              `json:"technicianId" validate:"required,gt=0"`
	WeekStart        string             `json:"weekStart" validate:"required,datetime=2006-01-02"`
	SOW              string             `json:"sow,omitempty" validate:"omitempty,max=32"`
	Regions          []string           `json:"regions,omitempty" validate:"omitempty,dive,required"`
	Strategy         string             `json:"strategy,omitempty" validate:"omitempty,oneof=greedy annealing 2opt"`
	Seed             int64              `json:"seed,omitempty"`
	IncludeAdjacent  bool               `json:"includeAdjacent,omitempty"`
	AllowFiller      *bool              `json:"allowFiller,omitempty"`
	AssignedClusters []string           `json:"assignedClusters,omitempty"`
	Pinned           map[string][]int64 `json:"pinned,omitempty" validate:"omitempty,dive,keys,datetime=2006-01-02,endkeys,dive,gt=0"`
	Commit           bool               `json:"commit,omitempty"`
}

type BatchRequest struct {
	Builds []BuildRequest `json:"builds" validate:"required,min=1,max=200,dive"`
}

type BatchItem struct {
	TechnicianID int64         `json:"technicianId"`
	Schedule     *WeekSchedule `json:"schedule,omitempty"`
	CommitID     string        `json:"commitId,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type BuildResponse struct {
	Schedule WeekSchedule `json:"schedule"`
	CommitID string       `json:"commitId,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events" validate:"required,min=1,dive,oneof=schedule.committed schedule.built"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Secret string   `json:"-"`
	Events []string `json:"events"`
}

// ProgressEvent is streamed to watchers while a week is being built.
type ProgressEvent struct {
	Type         string  `json:"type"`
	BuildID      string  `json:"buildId"`
	TechnicianID int64   `json:"technicianId"`
	Date         string  `json:"date,omitempty"`
	Jobs         int     `json:"jobs,omitempty"`
	Hours        float64 `json:"hours,omitempty"`
	HotelStay    bool    `json:"hotelStay,omitempty"`
}
