package model

// StatsOverview is the response shape of GET /api/stats.
type StatsOverview struct {
	Sessions   SessionStats   `json:"sessions"`
	Recordings RecordingStats `json:"recordings"`
	System     SystemStats    `json:"system"`
}

type SessionStats struct {
	Total              int64            `json:"total"`
	Completed          int64            `json:"completed"`
	RecentWeek         int64            `json:"recentWeek"`
	AverageAge         int64            `json:"averageAge"`
	GenderDistribution map[Gender]int64 `json:"genderDistribution"`
}

type RecordingStats struct {
	Total           int64 `json:"total"`
	RecentWeek      int64 `json:"recentWeek"`
	TotalFileSize   int64 `json:"totalFileSize"`
	AverageFileSize int64 `json:"averageFileSize"`
}

type SystemStats struct {
	Uptime     int64  `json:"uptime"`
	AllocBytes uint64 `json:"allocBytes"`
	Goroutines int    `json:"goroutines"`
	GoVersion  string `json:"goVersion"`
}

// SessionAggregate is the raw output of the session stats pipeline.
type SessionAggregate struct {
	TotalSessions      int64            `bson:"totalSessions"`
	CompletedSessions  int64            `bson:"completedSessions"`
	AverageAge         float64          `bson:"averageAge"`
	GenderDistribution map[Gender]int64 `bson:"-"`
}

// RecordingAggregate is the raw output of the recording stats pipeline.
type RecordingAggregate struct {
	TotalRecordings int64   `bson:"totalRecordings"`
	TotalFileSize   int64   `bson:"totalFileSize"`
	AverageFileSize float64 `bson:"averageFileSize"`
}
