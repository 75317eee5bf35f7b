package webmod

// Next continues the middleware chain with the given request and response.
type Next func(req *Request, res *Response) *Response

// Middleware inspects or rewrites a request and response. It continues the
// chain by returning the result of next, or short-circuits by returning any
// other response.
type Middleware func(req *Request, res *Response, next Next) *Response

// continueChain records req and res as the continuation and returns res.
func continueChain(req *Request, res *Response) *Response {
	if res == nil {
		res = NewResponse()
	}
	res.next = &continuation{req: req, res: res}
	return res
}

// runChain drives mws in order, then handler. After each middleware the
// returned response either carries a continuation, in which case its request
// and response feed the next step, or it is final.
func runChain(req *Request, res *Response, mws []Middleware, handler Handler) *Response {
	for _, mw := range mws {
		out := mw(req, res, continueChain)
		if out == nil {
			return InternalServerError()
		}
		cont := out.next
		if cont == nil {
			return out
		}
		out.next = nil
		req, res = cont.req, cont.res
	}
	final := handler(req, res)
	if final == nil {
		return InternalServerError()
	}
	final.next = nil
	return final
}
