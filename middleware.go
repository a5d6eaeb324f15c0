package edgemq

// HandlerInterceptor is a function that wraps a MessageHandler.
// Interceptors apply to every handler the client calls, including the
// default publish handler.
//
// Example (Logging):
//
//	func LoggingInterceptor(next edgemq.MessageHandler) edgemq.MessageHandler {
//	    return func(client *edgemq.Client, msg edgemq.Message) {
//	        log.Printf("Received message on topic %s", msg.Topic)
//	        next(client, msg)
//	    }
//	}
type HandlerInterceptor func(MessageHandler) MessageHandler

// PublishFunc matches the signature of Client.Publish.
type PublishFunc func(topic string, payload []byte, qos QoS, retain bool) error

// PublishInterceptor is a function that wraps a PublishFunc.
// It sees every call to Client.Publish before validation, whether the
// message is sent immediately or queued.
//
// Example (Stamping):
//
//	func StampInterceptor(next edgemq.PublishFunc) edgemq.PublishFunc {
//	    return func(topic string, payload []byte, qos edgemq.QoS, retain bool) error {
//	        stamped := fmt.Appendf(nil, "%d|%s", time.Now().Unix(), payload)
//	        return next(topic, stamped, qos, retain)
//	    }
//	}
type PublishInterceptor func(PublishFunc) PublishFunc

// applyHandlerInterceptors wraps a MessageHandler with multiple interceptors.
// The first interceptor is the outermost.
func applyHandlerInterceptors(handler MessageHandler, interceptors []HandlerInterceptor) MessageHandler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		handler = interceptors[i](handler)
	}
	return handler
}

// applyPublishInterceptors wraps a PublishFunc with multiple interceptors.
func applyPublishInterceptors(publish PublishFunc, interceptors []PublishInterceptor) PublishFunc {
	for i := len(interceptors) - 1; i >= 0; i-- {
		publish = interceptors[i](publish)
	}
	return publish
}
