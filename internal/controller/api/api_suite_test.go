package api

import (
	"testing"

	"github.com/tenantflow/channel-connector/internal/platform/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestController(t *testing.T) {
	RegisterFailHandler(Fail)
	logger.InitLogger()
	RunSpecs(t, "API Suite")
}
