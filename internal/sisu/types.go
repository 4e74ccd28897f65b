// Package sisu provides a client for the Sisu student registry export API.
package sisu

import (
	"time"

	"github.com/edusync/moodlebridge/internal/registry"
)

// courseUnitRealisation is the wire representation of a Sisu course offering.
type courseUnitRealisation struct {
	ActivityPeriod   activityPeriod   `json:"activityPeriod"`
	AutomaticEnabled bool             `json:"automaticEnrollment"`
	Enrolments       []enrolment      `json:"enrolments"`
	FlowState        string           `json:"flowState"`
	ID               string           `json:"id"`
	Name             localisedName    `json:"name"`
	Responsibilities []responsibility `json:"responsibilityInfos"`
}

// activityPeriod is the start/end window of a course offering.
type activityPeriod struct {
	EndDate   string `json:"endDate"`
	StartDate string `json:"startDate"`
}

// enrolment is one student enrolment row.
type enrolment struct {
	Approved      bool   `json:"approved"`
	StatusCode    int    `json:"statusCode"`
	StudentNumber string `json:"studentNumber"`
}

// localisedName carries the course name per locale.
type localisedName struct {
	En string `json:"en"`
	Fi string `json:"fi"`
}

// responsibility is one responsible-teacher row.
type responsibility struct {
	EmployeeNumber string `json:"employeeNumber"`
	RoleURN        string `json:"roleUrn"`
}

// publishedFlowState is the flow state of a visible realisation.
const publishedFlowState = "PUBLISHED"

// sisuDateLayout is the activity period date format.
const sisuDateLayout = "2006-01-02"

// toRegistry converts a wire realisation into the shared registry snapshot.
func (c courseUnitRealisation) toRegistry() registry.CourseUnitRealisation {
	endDate, _ := time.Parse(sisuDateLayout, c.ActivityPeriod.EndDate)

	name := c.Name.Fi
	if name == "" {
		name = c.Name.En
	}

	out := registry.CourseUnitRealisation{
		AutomaticEnabled: c.AutomaticEnabled,
		EndDate:          endDate,
		Name:             name,
		Origin:           registry.OriginSisu,
		Published:        c.FlowState == publishedFlowState,
		RealisationID:    c.ID,
	}

	for _, e := range c.Enrolments {
		out.Students = append(out.Students, registry.Student{
			Approved:      e.Approved,
			StatusCode:    e.StatusCode,
			StudentNumber: e.StudentNumber,
		})
	}
	for _, r := range c.Responsibilities {
		if r.EmployeeNumber == "" {
			continue
		}
		out.Teachers = append(out.Teachers, registry.Teacher{EmployeeNumber: r.EmployeeNumber})
	}

	return out
}
