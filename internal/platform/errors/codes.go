// Package errors provides structured error handling for the engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// World errors
	CodeWorldNotFound     Code = "WORLD_NOT_FOUND"
	CodeWorldNameEmpty    Code = "WORLD_NAME_EMPTY"
	CodeWorldOwnerEmpty   Code = "WORLD_OWNER_EMPTY"
	CodeWorldAccessDenied Code = "WORLD_ACCESS_DENIED"

	// Session errors
	CodeSessionNotFound           Code = "SESSION_NOT_FOUND"
	CodeSessionOwnerEmpty         Code = "SESSION_OWNER_EMPTY"
	CodeVersionConflict           Code = "VERSION_CONFLICT"
	CodeInvalidEdgeForCurrentNode Code = "INVALID_EDGE_FOR_CURRENT_NODE"
	CodeTurnBasedViolation        Code = "TURN_BASED_VIOLATION"

	// Scene graph errors
	CodeSceneNotFound Code = "SCENE_NOT_FOUND"
	CodeEdgeNotFound  Code = "EDGE_NOT_FOUND"

	// Stat schema errors
	CodeInvalidDefinition Code = "INVALID_DEFINITION"

	// Cache errors (never fatal for mutations)
	CodeCacheUnavailable Code = "CACHE_UNAVAILABLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeWorldNameEmpty,
		CodeWorldOwnerEmpty,
		CodeSessionOwnerEmpty,
		CodeInvalidDefinition:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInvalidEdgeForCurrentNode,
		CodeTurnBasedViolation:
		return codes.FailedPrecondition

	// Aborted - concurrency conflicts the caller should retry after re-reading
	case CodeVersionConflict:
		return codes.Aborted

	// PermissionDenied - caller is not the owner
	case CodeWorldAccessDenied:
		return codes.PermissionDenied

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeWorldNotFound,
		CodeSessionNotFound,
		CodeSceneNotFound,
		CodeEdgeNotFound:
		return codes.NotFound

	// Unavailable - degraded dependencies
	case CodeCacheUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
