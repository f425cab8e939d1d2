// Package speck is the runtime for rewritten block-structured specifications.
//
// Spec files are ordinary _test.go files guarded by a build constraint and
// written with block labels:
//
//	//go:build speck
//
//	func TestPush(t *testing.T) {
//	given:
//		s := NewStack()
//		sub := &SubscriberMock{}
//		s.Subscribe(sub)
//	when:
//		s.Push(42)
//	then:
//		s.Len() == 1
//		1 * sub.Receive(42)
//	}
//
// The speck tool rewrites them into calls on this package:
//
//	$ speck test ./...
//
// # API Overview
//
// Generated code drives a [Spec] created by [New]:
//   - Scopes: [Spec.EnterScope], [Spec.LeaveScope]
//   - Conditions: [Spec.Verify], [Spec.VerifyAll], [With]
//   - Exception conditions: [Spec.Run], [Spec.Thrown], [Spec.NotThrown]
//   - Interactions: [Spec.Expect], [Spec.Interaction], [ExpectedInteraction.Respond]
//
// # Mocks
//
// A mock embeds [Mock] and forwards every method to [Mock.Called]:
//
//	type SubscriberMock struct {
//		speck.Mock
//	}
//
//	func (m *SubscriberMock) Receive(v int) bool {
//		ret := m.Called("Receive", v)
//		return len(ret) > 0 && ret[0].(bool)
//	}
//
// Calls that match no declared interaction return nil. Arguments are matched
// with [Anything], [Match] or structural equality.
//
// # Unsatisfied Interactions
//
// When a scope is left while some of its interactions were invoked fewer
// times than declared, the test fails with an [InteractionNotSatisfiedError]
// whose location points at the first unsatisfied declaration.
package speck
