// Package mocks provides test doubles for the places client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	places "github.com/tainan-eats/storedir/pkg/places"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// TextSearch provides a mock function with given fields: ctx, req
func (_m *MockClient) TextSearch(ctx context.Context, req places.TextSearchRequest) (*places.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for TextSearch")
	}

	var r0 *places.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, places.TextSearchRequest) (*places.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, places.TextSearchRequest) *places.SearchResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*places.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, places.TextSearchRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NearbySearch provides a mock function with given fields: ctx, req
func (_m *MockClient) NearbySearch(ctx context.Context, req places.NearbySearchRequest) (*places.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for NearbySearch")
	}

	var r0 *places.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, places.NearbySearchRequest) (*places.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, places.NearbySearchRequest) *places.SearchResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*places.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, places.NearbySearchRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Details provides a mock function with given fields: ctx, req
func (_m *MockClient) Details(ctx context.Context, req places.DetailsRequest) (*places.DetailsResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Details")
	}

	var r0 *places.DetailsResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, places.DetailsRequest) (*places.DetailsResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, places.DetailsRequest) *places.DetailsResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*places.DetailsResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, places.DetailsRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
