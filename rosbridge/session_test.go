package rosbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1 (spec.md §8): subscribe, receive a pushed publish frame,
// observe the subscriber yields the payload verbatim.
func TestSessionSubscribeReceivesPublishedMessage(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	sub, err := s.Subscribe("/chatter", "std_msgs/String")
	require.NoError(t, err)

	env := trans.nextOut(t)
	assert.Equal(t, OpSubscribe, env.Op)
	assert.Equal(t, "/chatter", env.Topic)

	trans.push(`{"op":"publish","topic":"/chatter","msg":{"data":"hi"}}`)

	select {
	case msg := <-sub.Messages():
		assert.JSONEq(t, `{"data":"hi"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the published message")
	}
}

// Scenario 2: advertise, publish, observe advertise then publish frames in
// order.
func TestSessionAdvertiseThenPublishOrder(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	pub, err := s.Advertise("/cmd", "geometry_msgs/Twist")
	require.NoError(t, err)

	adv := trans.nextOut(t)
	assert.Equal(t, OpAdvertise, adv.Op)
	assert.Equal(t, "/cmd", adv.Topic)

	zero := map[string]interface{}{
		"linear":  map[string]float64{"x": 0, "y": 0, "z": 0},
		"angular": map[string]float64{"x": 0, "y": 0, "z": 0},
	}
	require.NoError(t, pub.Publish(zero))

	pubFrame := trans.nextOut(t)
	assert.Equal(t, OpPublish, pubFrame.Op)
	assert.Equal(t, "/cmd", pubFrame.Topic)
}

// Scenario 3: call_service round trip succeeds.
func TestSessionCallServiceSucceeds(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	type req struct {
		A int `json:"a"`
		B int `json:"b"`
	}

	resultCh := make(chan json.RawMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		values, err := s.CallService(context.Background(), "/add_two_ints", "rospy_tutorials/AddTwoInts", req{A: 2, B: 3})
		resultCh <- values
		errCh <- err
	}()

	env := trans.nextOut(t)
	require.Equal(t, OpCallService, env.Op)
	require.Equal(t, "/add_two_ints", env.Service)

	trans.push(`{"op":"service_response","service":"/add_two_ints","id":"` + env.ID + `","values":{"sum":5},"result":true}`)

	require.NoError(t, <-errCh)
	assert.JSONEq(t, `{"sum":5}`, string(<-resultCh))
}

func TestSessionCallServiceFailureReturnsServiceFailed(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.CallService(context.Background(), "/flaky", "test_srvs/Empty", struct{}{})
		errCh <- err
	}()

	env := trans.nextOut(t)
	trans.push(`{"op":"service_response","service":"/flaky","id":"` + env.ID + `","values":{},"result":false}`)

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceFailed)
}

// Scenario 4: advertise_service, answer an inbound call_service.
func TestSessionAdvertiseServiceAnswersInboundCall(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	handler := func(args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"msg":"pong"}`), nil
	}
	srv, err := s.AdvertiseService("/echo", "test_srvs/Echo", handler)
	require.NoError(t, err)
	defer srv.Close()

	adv := trans.nextOut(t)
	assert.Equal(t, OpAdvertiseService, adv.Op)

	trans.push(`{"op":"call_service","service":"/echo","args":{},"id":"x1"}`)

	resp := trans.nextOut(t)
	assert.Equal(t, OpServiceResponse, resp.Op)
	assert.Equal(t, "x1", resp.ID)
	assert.True(t, resp.ResultOK())
	assert.JSONEq(t, `{"msg":"pong"}`, string(resp.Values))
}

// Scenario 5: two subscribers to the same topic; dropping one must not
// unsubscribe, dropping the second must unsubscribe exactly once.
func TestSessionTwoSubscribersDropOneThenOther(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	sub1, err := s.Subscribe("/t", "std_msgs/String")
	require.NoError(t, err)
	trans.nextOut(t) // subscribe

	sub2, err := s.Subscribe("/t", "std_msgs/String")
	require.NoError(t, err)
	trans.expectNoOutboundFrame(t)

	require.NoError(t, sub1.Close())
	trans.expectNoOutboundFrame(t)

	require.NoError(t, sub2.Close())
	env := trans.nextOut(t)
	assert.Equal(t, OpUnsubscribe, env.Op)
	assert.Equal(t, "/t", env.Topic)
}

func TestSessionPublishWithoutAdvertiseFails(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	pub, err := s.Advertise("/cmd", "geometry_msgs/Twist")
	require.NoError(t, err)
	trans.nextOut(t) // advertise

	require.NoError(t, pub.Close())
	trans.nextOut(t) // unadvertise

	err = pub.Publish(map[string]int{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAdvertised)
}

// Scenario 6: force a socket drop with two live subscriptions and one live
// advertisement; the next successful connection must resubscribe/re-advertise
// before anything else, and any pending call must resolve Disconnected.
func TestSessionReconnectResubscribesAndFailsPendingCalls(t *testing.T) {
	trans1 := newFakeTransport()
	redial := newDialQueue()
	s := newTestSession(trans1, redial)

	_, err := s.Subscribe("/a", "std_msgs/String")
	require.NoError(t, err)
	trans1.nextOut(t)

	_, err = s.Subscribe("/b", "std_msgs/String")
	require.NoError(t, err)
	trans1.nextOut(t)

	pub, err := s.Advertise("/c", "std_msgs/String")
	require.NoError(t, err)
	trans1.nextOut(t)
	_ = pub

	callErrCh := make(chan error, 1)
	go func() {
		_, err := s.CallService(context.Background(), "/svc", "test_srvs/Empty", struct{}{})
		callErrCh <- err
	}()
	trans1.nextOut(t) // call_service

	trans2 := newFakeTransport()
	redial.push(trans2)
	trans1.drop()

	err = <-callErrCh
	assert.ErrorIs(t, err, ErrDisconnected)

	seenOps := map[Op]int{}
	for i := 0; i < 3; i++ {
		env := trans2.nextOut(t)
		seenOps[env.Op]++
	}
	assert.Equal(t, 2, seenOps[OpSubscribe])
	assert.Equal(t, 1, seenOps[OpAdvertise])
}

// SubscribeAny leaves the type off the outbound subscribe frame and still
// delivers whatever publish frames arrive (SPEC_FULL.md §10).
func TestSessionSubscribeAnyOmitsType(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	sub, err := s.SubscribeAny("/diagnostics")
	require.NoError(t, err)

	env := trans.nextOut(t)
	assert.Equal(t, OpSubscribe, env.Op)
	assert.Empty(t, env.Type)

	trans.push(`{"op":"publish","topic":"/diagnostics","msg":{"level":1}}`)
	select {
	case msg := <-sub.Messages():
		assert.JSONEq(t, `{"level":1}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("SubscribeAny subscriber never received the message")
	}
}

func TestSessionShutdownUnsubscribesAndUnadvertises(t *testing.T) {
	trans := newFakeTransport()
	s := newTestSession(trans, nil)

	_, err := s.Subscribe("/t", "std_msgs/String")
	require.NoError(t, err)
	trans.nextOut(t)

	_, err = s.Advertise("/t", "std_msgs/String")
	require.NoError(t, err)
	trans.nextOut(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	env := trans.nextOut(t)
	assert.Equal(t, OpUnsubscribe, env.Op)
	env = trans.nextOut(t)
	assert.Equal(t, OpUnadvertise, env.Op)
}
