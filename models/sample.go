package models

import "time"

// FlowSample is one provider observation for one point of one road at one
// instant. Provider fields are pointers: a field the provider omitted stays nil.
type FlowSample struct {
	ID                 string    `gorm:"column:id;primaryKey" json:"_id"`
	Road               string    `gorm:"column:road;index" json:"road"`
	Point              string    `gorm:"column:point" json:"point"`
	TS                 time.Time `gorm:"column:ts;index" json:"timestamp"`
	RoadName           *string   `gorm:"column:road_name" json:"roadName"`
	FRC                *string   `gorm:"column:frc" json:"frc"`
	CurrentSpeed       *float64  `gorm:"column:current_speed" json:"currentSpeed"`
	FreeFlowSpeed      *float64  `gorm:"column:free_flow_speed" json:"freeFlowSpeed"`
	CurrentTravelTime  *float64  `gorm:"column:current_travel_time" json:"currentTravelTime"`
	FreeFlowTravelTime *float64  `gorm:"column:free_flow_travel_time" json:"freeFlowTravelTime"`
	Confidence         *float64  `gorm:"column:confidence" json:"confidence"`
	RoadClosure        *bool     `gorm:"column:road_closure" json:"roadClosure"`
}

func (FlowSample) TableName() string { return "flow_samples" }
