package e2e

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"golang.org/x/net/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration and skips when no relay is targeted
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HttpAddr == "" || s.Config.GrpcAddr == "" {
		s.T().Skip("RELAY_HTTP_ADDR and RELAY_GRPC_ADDR must be set")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcConn opens a logged gRPC client connection to the relay
func (s *BaseRelaySuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	s.header(t, name)
	conn, err := grpc.NewClient(s.Config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)
			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	return conn
}

// Connect opens a websocket on the relay with the given query string
func (s *BaseRelaySuite) Connect(t *testing.T, name string, params domain.ConnectParams) *websocket.Conn {
	s.header(t, name)
	query := fmt.Sprintf("chat=%d", params.Chat)
	if params.User != 0 {
		query += fmt.Sprintf("&user=%d", params.User)
	}
	if params.Dev != 0 {
		query += fmt.Sprintf("&dev=%d", params.Dev)
	}
	url := fmt.Sprintf("ws://%s/socket?%s", s.Config.HttpAddr, query)
	ws, err := websocket.Dial(url, "", "http://"+s.Config.HttpAddr)
	s.Require().NoError(err, "Failed to open websocket at "+url)
	return ws
}

// ReadUntil reads frames until one carries data, failing after the deadline
func (s *BaseRelaySuite) ReadUntil(ws *websocket.Conn, data string, timeout time.Duration) {
	s.Require().NoError(ws.SetReadDeadline(time.Now().Add(timeout)))
	for {
		var frame domain.Frame
		s.Require().NoError(websocket.JSON.Receive(ws, &frame))
		s.Require().True(frame.IsChatMessage())
		if frame.Data == data {
			return
		}
	}
}
