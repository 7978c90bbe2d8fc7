package client

import (
	"context"

	"github.com/luma/tvremote/protocol"
)

func (s *Session) Power(ctx context.Context) error {
	return s.SendKey(ctx, protocol.Power)
}

func (s *Session) Home(ctx context.Context) error {
	return s.SendKey(ctx, protocol.Home)
}

func (s *Session) Back(ctx context.Context) error {
	return s.SendKey(ctx, protocol.Back)
}

func (s *Session) Menu(ctx context.Context) error {
	return s.SendKey(ctx, protocol.Menu)
}

func (s *Session) VolumeUp(ctx context.Context) error {
	return s.SendKey(ctx, protocol.VolumeUp)
}

func (s *Session) VolumeDown(ctx context.Context) error {
	return s.SendKey(ctx, protocol.VolumeDown)
}

func (s *Session) Mute(ctx context.Context) error {
	return s.SendKey(ctx, protocol.VolumeMute)
}

func (s *Session) PlayPause(ctx context.Context) error {
	return s.SendKey(ctx, protocol.MediaPlayPause)
}

func (s *Session) Next(ctx context.Context) error {
	return s.SendKey(ctx, protocol.MediaNext)
}

func (s *Session) Previous(ctx context.Context) error {
	return s.SendKey(ctx, protocol.MediaPrevious)
}

func (s *Session) Up(ctx context.Context) error {
	return s.SendKey(ctx, protocol.DpadUp)
}

func (s *Session) Down(ctx context.Context) error {
	return s.SendKey(ctx, protocol.DpadDown)
}

func (s *Session) Left(ctx context.Context) error {
	return s.SendKey(ctx, protocol.DpadLeft)
}

func (s *Session) Right(ctx context.Context) error {
	return s.SendKey(ctx, protocol.DpadRight)
}

func (s *Session) Select(ctx context.Context) error {
	return s.SendKey(ctx, protocol.DpadCenter)
}
