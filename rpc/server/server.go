package server

import (
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/rkv-db/rkv/rpc/common"
	"github.com/rkv-db/rkv/rpc/serializer"
	"github.com/rkv-db/rkv/rpc/transport"
)

var Logger = common.GetLogger("rpc")

// NewRPCServer creates a new RPC server that exposes the given replicated
// store over the client API. It takes a config, store, transport and
// serializer as parameters.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		store,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	store rstore.IStore,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return rpcServer{
		config:     config,
		store:      store,
		adapter:    NewIStoreServerAdapter(),
		transport:  transport,
		serializer: serializer,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	store      rstore.IStore
	adapter    IRPCServerAdapter
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Decode the request
		err := s.serializer.Deserialize(req, &msg)

		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to deserialize request: %s", err),
			}
		} else {
			// Let the adapter handle the request
			respMsg = *s.adapter.Handle(&msg, s.store)
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			}
			val, _ = s.serializer.Serialize(respMsg)
		}
		return val
	})
}

// Serve starts the RPC server and blocks until the transport layer stops
func (s *rpcServer) Serve() error {
	// Init logger
	common.InitLoggers(s.config)

	// Configure the transport layer
	s.registerTransportHandler()

	return s.transport.Listen(s.config)
}
