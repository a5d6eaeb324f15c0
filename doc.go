// Package edgemq provides an MQTT v3.1.1 client for small, always-on
// devices that keep one broker connection for days and must ride out long
// network outages on their own.
//
// The client holds a single connection driven by an explicit state machine
// and recovers from every failure by reconnecting. Publications made while
// offline are queued in small bounded buffers and flushed on the next
// connection.
//
// # Quick Start
//
// Create a client, register subscriptions and run it:
//
//	client, err := edgemq.New(edgemq.Settings{
//	    Host:     "broker.local",
//	    ClientID: "camera-1",
//	}, edgemq.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.Subscribe("camera-1/cmd", edgemq.AtLeastOnce,
//	    func(c *edgemq.Client, msg edgemq.Message) {
//	        fmt.Printf("%s: %s\n", msg.Topic, string(msg.Payload))
//	    })
//
//	go client.Run(ctx)
//
//	client.Publish("camera-1/motion", []byte("detected"), edgemq.AtLeastOnce, false)
//
// Publish and Subscribe never block on the network for long and never wait
// for acknowledgements. They may be called before Run, while connected or
// while the client is waiting to reconnect.
//
// # Connection Lifecycle
//
// Run cycles through these states until its context is cancelled:
//
//   - OPEN: dial the broker
//   - CONNECT: send CONNECT with a clean session
//   - CONNACK: wait for the server's answer
//   - ACCEPTED: resubscribe, then flush queued publications
//   - ESTABLISH: read and dispatch packets
//   - CLOSE: release the connection
//   - WAIT: sleep, then go back to OPEN
//
// The wait grows with the time since the connection was last established:
// 11 seconds during the first 15 minutes, 179 seconds up to an hour, 907
// seconds up to two hours and 3607 seconds after that. A refused CONNACK,
// a malformed packet or a silent server all lead to CLOSE and WAIT.
//
// # Keep Alive
//
// While established the client sends PINGREQ once per keep alive interval
// and drops the connection when nothing arrives for 1.5 intervals. The
// interval defaults to 60 seconds and is never below 10 seconds.
//
// # Quality of Service
//
//   - QoS 0: sent once; while offline up to ten messages wait in a backlog
//   - QoS 1: kept until PUBACK and resent with DUP when stale
//   - QoS 2: kept until PUBCOMP; PUBREL is resent after PUBREC
//
// Pending QoS 1 and 2 publications survive reconnects and are resent on
// every new connection. While offline only the ten newest are kept.
//
// # Message Dispatch
//
// Incoming messages go to the handler of the subscription whose topic
// equals the message topic. WithWildcardDispatch enables '+' and '#'
// matching instead. Messages without a handler go to the handler set with
// WithDefaultPublishHandler, if any.
//
// Handlers run on the connection goroutine before the acknowledgement is
// sent. They must not block for long.
//
// # Middleware
//
// WithHandlerInterceptor wraps every message handler and
// WithPublishInterceptor wraps every call to Publish, for cross-cutting
// concerns such as logging or payload stamping.
//
// # Telemetry
//
// Notifier publishes short status messages under the client identifier and
// stops trying for a while after repeated failures. NewCollector exports
// the client statistics to Prometheus.
//
// # WebSocket
//
// WebSocketDialer carries MQTT over a broker's WebSocket listener:
//
//	client, err := edgemq.New(settings,
//	    edgemq.WithDialer(&edgemq.WebSocketDialer{Path: "/mqtt"}))
package edgemq
