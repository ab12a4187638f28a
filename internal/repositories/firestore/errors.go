package firestore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func notFoundErr(msg string) error {
	return status.Error(codes.NotFound, msg)
}

func conflictErr(msg string) error {
	return status.Error(codes.AlreadyExists, msg)
}
