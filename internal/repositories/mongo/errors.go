package mongo

import (
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"go.mongodb.org/mongo-driver/mongo"
)

// storeErr marks driver failures that may clear up on their own (timeouts, dropped
// connections) as CodeUnavailable so callers can retry them. Other errors pass through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return utils.E(utils.CodeUnavailable, op, "mongo unreachable", err)
	}
	return err
}
