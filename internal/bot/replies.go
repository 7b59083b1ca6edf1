package bot

import (
	"fmt"
	"strings"

	"github.com/hackgods/jewelry-appointment-bot/internal/appointment"
	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
)

const sepInfo = "⚠️ *IMPORTANT:* Separate each detail with a COMMA ( , )"

const generalHelp = "👋 *Jewelry Bot Help*\n\n" +
	"To see the format for appointments, send:\n\n" +
	"👉 */help appointment* (Book, list and clear slots)\n\n" +
	"⚠️ Always use COMMAS ( , ) to separate details."

const appointmentHelp = "📅 *APPOINTMENT Commands*\n" + sepInfo + "\n\n" +
	"*Book today:*\n/a Name, Mobile, Time, Notes\n" +
	"*Book tomorrow:*\n/at Name, Mobile, Time, Notes\n" +
	"_or_ /a Name, Mobile, Time tomorrow, Notes\n\n" +
	"*Free and booked slots:*\n/slots\n/slots tomorrow\n\n" +
	"*Clear a slot:*\n/reschedule 2:00 PM\n/reschedule 2:00 PM tomorrow\n\n" +
	"*Example:*\n/a Rahul, 9876543210, 2:00 PM, Ring fitting\n\n" +
	"🕒 Slots run every 30 minutes from 11:00 AM to 7:30 PM."

const unknownCommand = "👋 Send */help appointment* for instructions."

const (
	replyCommaMissing = "❌ *Invalid Format*\nComma missing. Separate each detail with a COMMA ( , ).\nTry: */help appointment*"
	replyMandatory    = "❌ *Invalid Format*\nName and Mobile are mandatory.\nTry: */help appointment*"
	replyStrictTime   = "❌ *Invalid Time Format*\nUse H:MM AM/PM with minutes, e.g. *2:00 PM* or *11:30 AM*."
	replyLooseTime    = "❌ *Invalid Time*\nCould not read that time. Try e.g. *2 PM* or *2:30 PM*."
	replyOutsideHours = "❌ *Outside Working Hours*\nAppointments run from 11:00 AM to 7:30 PM (last slot ends 8:00 PM)."
	replyBusy         = "⏳ That slot is being booked right now. Please try again in a moment."
	replyDBError      = "❌ Database Error"
	replyServerError  = "❌ Server Error"
)

func bookedReply(a *appointment.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Appointment Booked!* (ID: %d)\n", a.ID)
	fmt.Fprintf(&b, "👤 %s\n", a.FullName())
	fmt.Fprintf(&b, "📱 %s\n", a.Mobile)
	fmt.Fprintf(&b, "📅 %s\n", a.Date)
	fmt.Fprintf(&b, "🕒 %s", slot.DisplayTime(a.SlotIndex))
	if a.Notes != "" {
		fmt.Fprintf(&b, "\n📝 %s", a.Notes)
	}
	b.WriteString("\n⏰ Reminder 10 minutes before.")
	return b.String()
}

func slotTakenReply(date string, idx int) string {
	return fmt.Sprintf("❌ *Slot Already Booked*\n%s on %s is taken.\nSend */slots* to see free slots.",
		slot.DisplayTime(idx), date)
}

func clearedReply(a *appointment.Appointment) string {
	return fmt.Sprintf("🗑 *Slot Cleared*\n%s on %s (%s, %s) has been removed and its reminder cancelled.\nBook a new time with */a*.",
		slot.DisplayTime(a.SlotIndex), a.Date, a.FullName(), a.Mobile)
}

func nothingFoundReply(date string, idx int) string {
	return fmt.Sprintf("ℹ️ Nothing found at %s on %s.", slot.DisplayTime(idx), date)
}

func slotsReply(date string, booked []appointment.Appointment) string {
	byIndex := make(map[int]appointment.Appointment, len(booked))
	for _, a := range booked {
		byIndex[a.SlotIndex] = a
	}

	var free, taken []string
	for idx := 0; idx < slot.Count; idx++ {
		if a, ok := byIndex[idx]; ok {
			taken = append(taken, fmt.Sprintf("%s: %s (%s)", slot.DisplayRange(idx), a.FullName(), a.Mobile))
			continue
		}
		free = append(free, slot.DisplayRange(idx))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Slots for %s*\n\n", date)
	fmt.Fprintf(&b, "✅ *Free (%d)*\n", len(free))
	if len(free) == 0 {
		b.WriteString("None\n")
	}
	for _, line := range free {
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "\n📌 *Booked (%d)*", len(taken))
	if len(taken) == 0 {
		b.WriteString("\nNone")
	}
	for _, line := range taken {
		b.WriteString("\n" + line)
	}
	return b.String()
}
