package runtime

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrUnknownMethod = status.New(codes.Unimplemented, "method does not serve a known task").Err()
var ErrEmptyResult = status.New(codes.Internal, "model returned no result").Err()
