// Package moodle provides a client for the Moodle web service API.
package moodle

import "fmt"

// Course is a Moodle course as returned by the web service.
type Course struct {
	// FullName is the course full display name.
	FullName string `json:"fullname"`

	// ID is the Moodle-internal course id.
	ID int64 `json:"id"`

	// ShortName is the course short name.
	ShortName string `json:"shortname"`

	// Visible indicates the course is visible to enrolled users.
	Visible int `json:"visible"`
}

// EnrolledUser is one currently-enrolled user in a Moodle course.
type EnrolledUser struct {
	// ID is the Moodle-internal user id.
	ID int64 `json:"id"`

	// Roles are the roles the user holds in the course.
	Roles []Role `json:"roles"`

	// Username is the Moodle username.
	Username string `json:"username"`
}

// HasRole reports whether the user holds the given role in the course.
func (u EnrolledUser) HasRole(roleID int64) bool {
	for _, r := range u.Roles {
		if r.RoleID == roleID {
			return true
		}
	}
	return false
}

// Role is one role assignment on an enrolled user.
type Role struct {
	// RoleID is the Moodle role id.
	RoleID int64 `json:"roleid"`
}

// user is the wire representation returned by user lookups.
type user struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// wsError is the error payload Moodle returns in place of a result.
type wsError struct {
	ErrorCode string `json:"errorcode"`
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

// Error formats the Moodle web service error.
func (e *wsError) Error() string {
	return fmt.Sprintf("moodle web service error %s: %s", e.ErrorCode, e.Message)
}
