package models

import (
	"time"
)

type Group struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateGroupRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Handle string `json:"handle" validate:"required,alphanum,lowercase,max=50"`
}
