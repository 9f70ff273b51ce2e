// Package relay carries selection bus messages between the windows of a
// session over WebSocket.
//
// A Hub runs inside the gateway server (`wellspace serve`) at /ws. Every
// window dials it with a Client, which implements bus.Transport. Messages a
// window sends are forwarded to every other window in the same session; the
// sender never receives its own message back.
//
//	?session=<id>   groups windows; windows in different sessions never see
//	                each other's selections.
//
// Delivery is best effort. A slow window whose send buffer is full is
// disconnected rather than allowed to stall the hub.
package relay
