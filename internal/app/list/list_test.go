package list_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/cartpool/internal/app/list"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config list.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Logger:     log.Noop,
			},
			expErr: false,
		},
		"missing repository should fail": {
			config: list.ServiceConfig{
				Logger: log.Noop,
			},
			expErr: true,
		},
		"nil logger should default to noop": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
			},
			expErr: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := list.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestServiceListTasks(t *testing.T) {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		req       list.TasksRequest
		expResult []model.Task
		expErr    bool
	}{
		"list all tasks without filter": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return([]model.Task{
					{ID: "t2", SiteName: "manual", CreatedAt: createdAt},
					{ID: "t1", SiteName: "fake", CreatedAt: createdAt},
				}, nil)
			},
			req: list.TasksRequest{},
			expResult: []model.Task{
				{ID: "t2", SiteName: "manual", CreatedAt: createdAt},
				{ID: "t1", SiteName: "fake", CreatedAt: createdAt},
			},
		},
		"filter by site": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return([]model.Task{
					{ID: "t3", SiteName: "manual", CreatedAt: createdAt},
					{ID: "t2", SiteName: "fake", CreatedAt: createdAt},
					{ID: "t1", SiteName: "manual", CreatedAt: createdAt},
				}, nil)
			},
			req: list.TasksRequest{SiteFilter: "manual"},
			expResult: []model.Task{
				{ID: "t3", SiteName: "manual", CreatedAt: createdAt},
				{ID: "t1", SiteName: "manual", CreatedAt: createdAt},
			},
		},
		"filter with no matches returns empty list": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return([]model.Task{
					{ID: "t1", SiteName: "manual", CreatedAt: createdAt},
				}, nil)
			},
			req:       list.TasksRequest{SiteFilter: "fake"},
			expResult: []model.Task{},
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return(nil, fmt.Errorf("database error"))
			},
			req:    list.TasksRequest{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := list.NewService(list.ServiceConfig{Repository: m})
			require.NoError(err)

			result, err := svc.ListTasks(context.Background(), test.req)

			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expResult, result)
			}

			m.AssertExpectations(t)
		})
	}
}

func TestServiceListProxies(t *testing.T) {
	used := true

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		req       list.ProxiesRequest
		expResult []model.Proxy
		expErr    bool
	}{
		"list all proxies without filter": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListProxies", mock.Anything, model.ProxyFilter{}).Once().Return([]model.Proxy{
					{ID: "p1", Host: "10.0.0.1", Port: 3128},
				}, nil)
			},
			req:       list.ProxiesRequest{},
			expResult: []model.Proxy{{ID: "p1", Host: "10.0.0.1", Port: 3128}},
		},
		"filter by used flag is delegated to the repository": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListProxies", mock.Anything, model.ProxyFilter{HasBeenUsed: &used}).Once().Return([]model.Proxy{
					{ID: "p2", Host: "10.0.0.2", Port: 3128, HasBeenUsed: true},
				}, nil)
			},
			req:       list.ProxiesRequest{UsedFilter: &used},
			expResult: []model.Proxy{{ID: "p2", Host: "10.0.0.2", Port: 3128, HasBeenUsed: true}},
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListProxies", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("database error"))
			},
			req:    list.ProxiesRequest{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := list.NewService(list.ServiceConfig{Repository: m})
			require.NoError(err)

			result, err := svc.ListProxies(context.Background(), test.req)

			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expResult, result)
			}

			m.AssertExpectations(t)
		})
	}
}
